// Package vmb is a camera SDK over a GenICam style transport layer: camera
// discovery, feature access with change notification, asynchronous frame
// streaming, synchronous single frame capture, chunk data access and
// settings persistence.
//
// The entry point is [VmbSystem]:
//
//	sys, err := vmb.New(vmb.Config{})
//	if err != nil { ... }
//	if err := sys.Startup(ctx); err != nil { ... }
//	defer sys.Shutdown(ctx)
//
//	cam, err := sys.CameraByID("DEV_SIM_0001")
//	if err != nil { ... }
//	if err := cam.Open(ctx); err != nil { ... }
//	defer cam.Close(ctx)
//
//	frame, err := cam.GetFrame(ctx, time.Second)
//
// Features are accessed through typed views that fail fast on interface
// mismatch:
//
//	exposure, err := vmb.AsFloat(cam.FeatureByName("ExposureTime"))
//	if err != nil { ... }
//	if err := exposure.Set(5000); err != nil { ... }
//
// All errors returned by the SDK wrap one of the package sentinel errors
// (ErrScope, ErrFeatureNotFound, ErrAccess, ErrRange, ...) and are matched
// with errors.Is.
package vmb
