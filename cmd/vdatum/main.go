// vdatum transforms point heights between vertical datums from the command
// line. Points come from a CSV file (lon,lat,height per row) or from the
// -lon/-lat/-height flags for a single coordinate; results go to stdout or
// -out as CSV with uncertainty, region and coverage columns.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/coastalmapping/vdatum/internal/storage/sqlite"
	"github.com/coastalmapping/vdatum/internal/vdatum/gridshift"
	"github.com/coastalmapping/vdatum/internal/vdatum/pipeline"
	"github.com/coastalmapping/vdatum/internal/vdatum/registry"
	"github.com/coastalmapping/vdatum/internal/vdatum/transform"
	"github.com/coastalmapping/vdatum/internal/version"
)

var (
	vdatumPath   = flag.String("vdatum", "", "Path to the vdatum grid distribution (required)")
	fromDatum    = flag.String("from", "ellipse", "Source vertical datum")
	toDatum      = flag.String("to", "", "Target vertical datum (required)")
	inPath       = flag.String("in", "", "Input CSV of lon,lat,height rows ('-' for stdin)")
	outPath      = flag.String("out", "", "Output CSV path (default stdout)")
	lon          = flag.Float64("lon", math.NaN(), "Single point longitude")
	lat          = flag.Float64("lat", math.NaN(), "Single point latitude")
	height       = flag.Float64("height", 0, "Single point height")
	forceInput   = flag.String("force-input-datum", "", "Override the source datum without changing region selection")
	allowOutside = flag.Bool("allow-outside-coverage", false, "Pass out-of-coverage points through instead of failing")
	auditDB      = flag.String("audit-db", "", "Optional sqlite file recording a job row per run")
	showWKT      = flag.Bool("wkt", false, "Print the compound CRS WKT to stderr")
	showVersion  = flag.Bool("version", false, "Print the build version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("vdatum %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *vdatumPath == "" {
		log.Fatal("-vdatum is required")
	}
	if *toDatum == "" {
		log.Fatal("-to is required")
	}

	source, err := pipeline.ParseSpec(*fromDatum)
	if err != nil {
		log.Fatalf("bad -from: %v", err)
	}
	destination, err := pipeline.ParseSpec(*toDatum)
	if err != nil {
		log.Fatalf("bad -to: %v", err)
	}

	xs, ys, zs, err := readPoints()
	if err != nil {
		log.Fatalf("failed to read points: %v", err)
	}

	reg, err := registry.Load(*vdatumPath)
	if err != nil {
		log.Fatalf("failed to load grid distribution: %v", err)
	}
	tr := transform.New(reg, gridshift.NewGTXShifter(reg.BasePath()))

	opts := transform.Options{AllowPointsOutsideCoverage: *allowOutside}
	if *forceInput != "" {
		forced, err := pipeline.ParseSpec(*forceInput)
		if err != nil {
			log.Fatalf("bad -force-input-datum: %v", err)
		}
		opts.ForceInputVerticalDatum = &forced
	}

	start := time.Now()
	batch, err := tr.TransformPoints(context.Background(), source, destination, xs, ys, zs, opts)
	if err != nil {
		log.Fatalf("transform failed: %v", err)
	}

	if err := writeResults(batch); err != nil {
		log.Fatalf("failed to write results: %v", err)
	}

	remark := batch.CRS.Vertical.Remark
	fmt.Fprintf(os.Stderr, "remark: %s\n", remark)
	if *showWKT {
		fmt.Fprintf(os.Stderr, "wkt: %s\n", batch.CRS.WKT())
	}

	if *auditDB != "" {
		if err := recordJob(batch, source, destination, time.Since(start)); err != nil {
			log.Printf("failed to record audit job: %v", err)
		}
	}
}

func readPoints() (xs, ys, zs []float64, err error) {
	if *inPath == "" {
		if math.IsNaN(*lon) || math.IsNaN(*lat) {
			return nil, nil, nil, fmt.Errorf("provide -in or both -lon and -lat")
		}
		return []float64{*lon}, []float64{*lat}, []float64{*height}, nil
	}

	var r io.Reader = os.Stdin
	if *inPath != "-" {
		f, err := os.Open(*inPath)
		if err != nil {
			return nil, nil, nil, err
		}
		defer f.Close()
		r = f
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, nil, err
		}
		line++
		if len(rec) < 2 {
			return nil, nil, nil, fmt.Errorf("row %d: need at least lon,lat", line)
		}
		x, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			if line == 1 {
				continue // header row
			}
			return nil, nil, nil, fmt.Errorf("row %d: bad longitude %q", line, rec[0])
		}
		y, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("row %d: bad latitude %q", line, rec[1])
		}
		z := 0.0
		if len(rec) > 2 && rec[2] != "" {
			if z, err = strconv.ParseFloat(rec[2], 64); err != nil {
				return nil, nil, nil, fmt.Errorf("row %d: bad height %q", line, rec[2])
			}
		}
		xs = append(xs, x)
		ys = append(ys, y)
		zs = append(zs, z)
	}
	if len(xs) == 0 {
		return nil, nil, nil, fmt.Errorf("no points in %s", *inPath)
	}
	return xs, ys, zs, nil
}

func writeResults(batch *transform.Batch) error {
	var w io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"lon", "lat", "height", "uncertainty", "region", "in_coverage"}); err != nil {
		return err
	}
	for _, res := range batch.Results {
		unc := ""
		if !math.IsNaN(res.Uncertainty) {
			unc = strconv.FormatFloat(res.Uncertainty, 'f', -1, 64)
		}
		row := []string{
			strconv.FormatFloat(res.X, 'f', -1, 64),
			strconv.FormatFloat(res.Y, 'f', -1, 64),
			strconv.FormatFloat(res.Z, 'f', -1, 64),
			unc,
			res.Region,
			strconv.FormatBool(res.InCoverage),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func recordJob(batch *transform.Batch, source, destination pipeline.Spec, elapsed time.Duration) error {
	db, err := sqlite.NewDB(*auditDB)
	if err != nil {
		return err
	}
	defer db.Close()

	outside := int64(0)
	for _, res := range batch.Results {
		if !res.InCoverage {
			outside++
		}
	}
	job := &sqlite.Job{
		SourceDatum:   source.String(),
		TargetDatum:   destination.String(),
		Regions:       batch.CRS.Vertical.Remark.Regions,
		Remark:        batch.CRS.Vertical.Remark.String(),
		PointCount:    int64(len(batch.Results)),
		OutOfCoverage: outside,
		Duration:      elapsed,
	}
	if err := db.RecordJob(job); err != nil {
		return err
	}
	log.Printf("recorded job %s", job.ID)
	return nil
}
