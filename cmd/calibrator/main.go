// Command calibrator launches CameraCalibrator, checking once per run for
// a newer release and handing off to a replacement script when the user
// accepts one.
package main

import (
	"context"
	"os"
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:]))
}
