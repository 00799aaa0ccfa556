package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"volreg/pkg/diag"
	"volreg/pkg/registration"
	"volreg/pkg/visualization"
	"volreg/pkg/volume"
)

func main() {
	refPath := flag.String("ref", "", "Reference image (volume file)")
	floPath := flag.String("flo", "", "Floating image (volume file)")
	mode := flag.String("mode", "affine", "Registration mode: rigid, affine or deformable")
	paramFile := flag.String("param", "", "Optional YAML parameter file")
	outPath := flag.String("out", "registered.vol", "Output image filename")
	matrixPath := flag.String("matrix", "", "Save the forward transformation matrix (rigid/affine only)")
	fieldBase := flag.String("field", "", "Save the forward displacement field split into x/y/z components")
	previewDir := flag.String("preview", "", "Directory for mid-slice JPEG previews of the output")
	logInfo := flag.String("log-info", diag.ToStdout, "Info channel: stdout, stderr, a filename, or empty to suppress")
	logWarn := flag.String("log-warn", diag.ToStderr, "Warning channel: stdout, stderr, a filename, or empty to suppress")
	logError := flag.String("log-error", diag.ToStderr, "Error channel: stdout, stderr, a filename, or empty to suppress")
	flag.Parse()

	if *refPath == "" || *floPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	channels, err := diag.New(diag.Config{Info: *logInfo, Warning: *logWarn, Error: *logError})
	if err != nil {
		log.Fatalf("Failed to open diagnostic channels: %v", err)
	}
	defer channels.Close()

	ref, err := volume.LoadImage(*refPath)
	if err != nil {
		log.Fatalf("Failed to load reference image: %v", err)
	}
	flo, err := volume.LoadImage(*floPath)
	if err != nil {
		log.Fatalf("Failed to load floating image: %v", err)
	}
	channels.Info("loaded reference %v and floating %v", ref.Extents(), flo.Extents())

	start := time.Now()
	var output *volume.Image
	switch *mode {
	case "rigid", "affine":
		output = runAffine(channels, ref, flo, *paramFile, *mode == "rigid", *matrixPath, *fieldBase)
	case "deformable":
		output = runDeformable(channels, ref, flo, *paramFile, *fieldBase)
	default:
		log.Fatalf("Unknown mode %q (want rigid, affine or deformable)", *mode)
	}
	channels.Info("registration finished in %.2f seconds", time.Since(start).Seconds())

	if err := output.Save(*outPath); err != nil {
		log.Fatalf("Failed to save output: %v", err)
	}
	fmt.Printf("Registered image saved to %s\n", *outPath)

	if *previewDir != "" {
		if err := visualization.SaveMidSlices(output, *previewDir, "registered"); err != nil {
			channels.Warning("preview failed: %v", err)
		}
	}
}

func runAffine(channels *diag.Channels, ref, flo *volume.Image, paramFile string, rigid bool, matrixPath, fieldBase string) *volume.Image {
	reg := registration.NewAffine()
	reg.SetDiagnostics(channels)
	if err := reg.SetReferenceImage(ref); err != nil {
		log.Fatalf("Bad reference image: %v", err)
	}
	if err := reg.SetFloatingImage(flo); err != nil {
		log.Fatalf("Bad floating image: %v", err)
	}
	reg.SetRigid(rigid)
	if paramFile != "" {
		reg.SetParameterFile(paramFile)
	}
	if err := reg.Update(); err != nil {
		log.Fatalf("Registration failed: %v", err)
	}

	sim, _ := reg.Similarity()
	fmt.Printf("Similarity (normalized cross-correlation): %.4f\n", sim)

	if matrixPath != "" {
		fwd, err := reg.TransformationMatrixForward()
		if err != nil {
			log.Fatalf("Failed to read transformation matrix: %v", err)
		}
		if err := fwd.Save(matrixPath); err != nil {
			log.Fatalf("Failed to save transformation matrix: %v", err)
		}
		fmt.Printf("Forward matrix saved to %s (determinant %.4f)\n", matrixPath, fwd.Determinant())
	}
	if fieldBase != "" {
		disp, err := reg.DisplacementFieldForward()
		if err != nil {
			log.Fatalf("Failed to read displacement field: %v", err)
		}
		if err := disp.Field.SaveSplitXYZ(fieldBase); err != nil {
			log.Fatalf("Failed to save displacement field: %v", err)
		}
		fmt.Printf("Forward displacement field saved to %s_{x,y,z}.vol\n", fieldBase)
	}

	output, err := reg.Output()
	if err != nil {
		log.Fatalf("Failed to read output: %v", err)
	}
	return output
}

func runDeformable(channels *diag.Channels, ref, flo *volume.Image, paramFile, fieldBase string) *volume.Image {
	reg := registration.NewDeformable()
	reg.SetDiagnostics(channels)
	if err := reg.SetReferenceImage(ref); err != nil {
		log.Fatalf("Bad reference image: %v", err)
	}
	if err := reg.SetFloatingImage(flo); err != nil {
		log.Fatalf("Bad floating image: %v", err)
	}
	if paramFile != "" {
		reg.SetParameterFile(paramFile)
	}
	if err := reg.Update(); err != nil {
		log.Fatalf("Registration failed: %v", err)
	}

	sim, _ := reg.Similarity()
	fmt.Printf("Similarity (normalized cross-correlation): %.4f\n", sim)

	if fieldBase != "" {
		disp, err := reg.DisplacementFieldForward()
		if err != nil {
			log.Fatalf("Failed to read displacement field: %v", err)
		}
		if err := disp.Field.SaveSplitXYZ(fieldBase); err != nil {
			log.Fatalf("Failed to save displacement field: %v", err)
		}
		fmt.Printf("Forward displacement field saved to %s_{x,y,z}.vol\n", fieldBase)
	}

	output, err := reg.Output()
	if err != nil {
		log.Fatalf("Failed to read output: %v", err)
	}
	return output
}
