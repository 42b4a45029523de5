// Package merger merges an ordered list of video clips into a single
// media artifact, backed by native codec wrappers (libmerge_*).
//
// Clips play back sequentially onto a shared canvas and audio mix bus
// while a recorder encodes the composite into one WebM or MP4 file:
//
//	Clip (WebM/IVF) -> decode -> CanvasWriter -> Canvas  -> VideoEncoder -> Muxer -> Artifact
//	Clip audio      -> decode -> BusConnection -> MixBus -> AudioEncoder ---^
//
// The canvas resolution locks to the first clip's dimensions; later
// clips are scaled to fit with letterboxing. The mix bus emits
// continuous audio, padding silence between clips, so the output
// timeline never stalls.
//
// # Native Libraries
//
// Codec bindings load libmerge_* wrapper libraries via purego
// (CGO_ENABLED=0). Set MERGE_SDK_LIB_PATH to the directory containing
// them. Output format negotiation degrades gracefully: VP9+Opus WebM,
// then VP8+Opus WebM, then video-only H.264 MP4, depending on which
// encoders are available at runtime.
//
// # Supported Inputs
//
// WebM (VP8/VP9 video, Opus audio) and IVF with an optional sidecar
// Ogg Opus file. PatternClip generates synthetic clips that need no
// native libraries at all.
package merger
