package main

// See doc.go for documentation
import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/bigbed/encoding/bigbed"
)

var (
	chrom    = flag.String("chr", "", "If set, restrict output to the given chromosome")
	start    = flag.Uint64("start", 0, "If set, restrict output to records ending after this position")
	end      = flag.Uint64("end", 0, "If set, restrict output to records starting before this position")
	maxItems = flag.Int("max", 0, "If set, restrict output to the first N records")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] input.bb [output.bed]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Other options:\n")
	flag.PrintDefaults()
}

func parsePos(v uint64, name string) uint32 {
	if v > math.MaxUint32 {
		log.Fatalf("Invalid value for %s: %d (expected a number between 0 and %d)", name, v, uint32(math.MaxUint32))
	}
	return uint32(v)
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	args := flag.Args()
	if len(args) < 1 || len(args) > 2 {
		usage()
		os.Exit(2)
	}
	opts := bigbed.ToBEDOpts{
		Chrom:    *chrom,
		Start:    parsePos(*start, "-start"),
		End:      parsePos(*end, "-end"),
		MaxItems: *maxItems,
	}

	ctx := vcontext.Background()
	in, err := file.Open(ctx, args[0])
	if err != nil {
		log.Fatalf("Could not open file %s: %v", args[0], err)
	}
	defer in.Close(ctx) // nolint: errcheck

	bb, err := bigbed.New(in.Reader(ctx))
	if err != nil {
		if _, ok := err.(*bigbed.BadSigError); ok {
			log.Error.Printf("%v", err)
			log.Fatalf("Is %s really a BigBed file?", args[0])
		}
		log.Fatalf("Could not read %s: %v", args[0], err)
	}

	out := io.Writer(os.Stdout)
	if len(args) == 2 {
		dst, err := file.Create(ctx, args[1])
		if err != nil {
			log.Fatalf("Could not create file %s: %v", args[1], err)
		}
		defer file.CloseAndReport(ctx, dst, &err)
		out = dst.Writer(ctx)
	}

	if err := bb.ToBED(out, opts); err != nil {
		switch err.(type) {
		case *bigbed.BadChromError, *bigbed.BadKeyError:
			log.Error.Printf("%v", err)
			log.Fatalf("This chromosome (%q) may not be in the file.", *chrom)
		default:
			log.Fatalf("%v", err)
		}
	}
}
