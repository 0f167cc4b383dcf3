// Package laser holds the per-device point model and the scanner simulation
// that turns raw Beyond point streams into renderer-ready frames.
//
// Data flows through three stages:
//
//	decoder output ([]RawPoint)
//	  -> ConvertRawPoints   (colour normalisation, y flip, colour shift)
//	  -> Source.SetPointList (raw buffer, replaced wholesale)
//	  -> Source.Update       (Simulate: hot beams, interpolate, smooth, downsample, dedupe)
//	  -> Source.Processed    (read by renderers and the status server)
//
// Sources are owned by a Registry keyed by device index. The receive loop
// writes raw buffers and the frame driver calls Registry.Update once per
// output frame.
package laser
