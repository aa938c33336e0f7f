// camtest checks connectivity to an IP camera without loading a model:
// it opens the stream, reads one frame and reports what it found.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gocv.io/x/gocv"

	"camwatch/internal/camera"
)

func main() {
	var (
		ip      = flag.String("ip", "http://192.168.1.100:8080", "camera base URL")
		timeout = flag.Duration("timeout", 10*time.Second, "connection timeout")
		out     = flag.String("out", "", "write the probe frame as JPEG to this path")
	)
	flag.Parse()

	fmt.Printf("Probing %s ...\n", camera.NormalizeURL(*ip))

	stream, err := camera.Open(*ip, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	defer stream.Close()

	frame := gocv.NewMat()
	defer frame.Close()
	if err := stream.ReadFrame(&frame); err != nil {
		fmt.Fprintf(os.Stderr, "❌ connected but could not read a frame: %v\n", err)
		os.Exit(1)
	}

	info := stream.Info()
	fmt.Printf("✅ Connected to %s\n", info.BaseURL)
	fmt.Printf("   mode: %s\n", info.Mode)
	fmt.Printf("   size: %dx%d\n", frame.Cols(), frame.Rows())
	if info.FPS > 0 {
		fmt.Printf("   fps:  %.1f\n", info.FPS)
	}

	if *out != "" {
		buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ could not encode probe frame: %v\n", err)
			os.Exit(1)
		}
		defer buf.Close()
		if err := os.WriteFile(*out, buf.GetBytes(), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "❌ could not write %s: %v\n", *out, err)
			os.Exit(1)
		}
		fmt.Printf("   probe frame written to %s\n", *out)
	}
}
