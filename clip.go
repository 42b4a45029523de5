package merger

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ErrNoClips is returned when a run is requested with an empty clip list.
var ErrNoClips = errors.New("no clips")

// Clip describes one input video to be merged: a display name and an open
// function producing its decode context. The open function is invoked once,
// when the clip's playback turn begins.
type Clip struct {
	Name string
	Open func() (*ClipSource, error)
}

// FileClip builds a Clip backed by a file on disk, dispatched through the
// clip opener registry by extension.
func FileClip(path, name string) Clip {
	return Clip{
		Name: name,
		Open: func() (*ClipSource, error) {
			return OpenClipFile(path)
		},
	}
}

// ClipList is an ordered sequence of clips. Order defines the output
// timeline order.
type ClipList []Clip

// Validate checks the list invariant: non-empty, every entry openable.
func (l ClipList) Validate() error {
	if len(l) == 0 {
		return ErrNoClips
	}
	for i, clip := range l {
		if clip.Open == nil {
			return fmt.Errorf("clip %d (%q): no source", i, clip.Name)
		}
	}
	return nil
}

// Names returns the clip names in list order.
func (l ClipList) Names() []string {
	names := make([]string, len(l))
	for i, clip := range l {
		names[i] = clip.Name
	}
	return names
}

// SortNatural sorts the list in place by name using numeric-aware ordering,
// so clip2 sorts before clip10.
func (l ClipList) SortNatural() {
	c := collate.New(language.Und, collate.Numeric)
	sort.SliceStable(l, func(i, j int) bool {
		return c.CompareString(l[i].Name, l[j].Name) < 0
	})
}

// SortNaturalStrings sorts names with the same numeric-aware ordering used
// by SortNatural.
func SortNaturalStrings(names []string) {
	c := collate.New(language.Und, collate.Numeric)
	c.SortStrings(names)
}

// ClipError is a fatal per-clip failure that aborts the run. It names the
// clip so the run state message can carry a human-readable cause.
type ClipError struct {
	Clip string
	Err  error
}

func (e *ClipError) Error() string {
	return fmt.Sprintf("clip %q: %v", e.Clip, e.Err)
}

func (e *ClipError) Unwrap() error {
	return e.Err
}
