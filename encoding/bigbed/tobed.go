package bigbed

import (
	"io"
	"strings"

	"github.com/grailbio/base/tsv"
)

// ToBEDOpts restricts what ToBED emits.  The zero value converts the whole
// file.
type ToBEDOpts struct {
	// Chrom, when nonempty, restricts output to the chromosome with this
	// name (compared after stripping any NUL padding from the stored name).
	Chrom string
	// Start is the first base to include on each chromosome.
	Start uint32
	// End bounds each chromosome's range; zero means through the end of the
	// chromosome.
	End uint32
	// MaxItems caps the total number of lines across all chromosomes; zero
	// means unlimited.
	MaxItems int
}

// ToBED writes the file's records to w as BED text, one
// name<TAB>start<TAB>end[<TAB>rest] line per record.  Records are emitted
// per chromosome in the order Query returns them, which is not guaranteed
// sorted by position.
func (bb *BigBed) ToBED(w io.Writer, opts ToBEDOpts) error {
	chroms, err := bb.Chroms()
	if err != nil {
		return err
	}
	tw := tsv.NewWriter(w)
	emitted := 0
	for _, chrom := range chroms {
		name := strings.Trim(chrom.Name, "\x00")
		if opts.Chrom != "" && opts.Chrom != name {
			continue
		}
		end := opts.End
		if end == 0 {
			end = chrom.Size
		}
		remaining := 0
		if opts.MaxItems > 0 {
			remaining = opts.MaxItems - emitted
			if remaining <= 0 {
				break
			}
		}
		lines, err := bb.Query(chrom.Name, opts.Start, end, remaining)
		if err != nil {
			return err
		}
		for _, line := range lines {
			tw.WriteString(name)
			tw.WriteUint32(line.Start)
			tw.WriteUint32(line.End)
			if line.Rest != "" {
				tw.WriteString(line.Rest)
			}
			if err := tw.EndLine(); err != nil {
				return err
			}
		}
		emitted += len(lines)
	}
	return tw.Flush()
}
