// Package follow computes the viewport rectangle streamed from the
// captured source, optionally tracking the pointer.
//
// The Controller is a deterministic state machine: given the same
// sequence of timed cursor samples (and gaps) it always produces the
// same sequence of viewport rectangles. All smoothing and deadzone
// arithmetic happens per sample with no wall-clock reads, which is
// what makes simulation-based testing possible.
//
// Cursor positions come from interchangeable CursorSource
// implementations (compositor cursor session, stream metadata, raw
// input device deltas). A Selector picks the first source that opens
// successfully and falls back down an ordered list when one fails;
// the Tracker drives the controller from the selected source at a
// fixed sample interval and re-acquires a source in the background
// after the controller transitions to Lost.
package follow
