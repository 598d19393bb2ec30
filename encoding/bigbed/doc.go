// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bigbed provides read-only, random access to BigBed files
// (https://genome.ucsc.edu/goldenPath/help/bigBed.html).  A BigBed file
// packs millions of BED intervals into compressed data blocks and indexes
// them twice: a B+ tree maps chromosome names to numeric ids, and an
// R-tree (the "CIR tree") maps (chromosome, base) ranges to the byte
// ranges of the blocks that may contain overlapping records.  The package
// decodes both indices in place, so an interval query touches only the
// handful of blocks the R-tree points at rather than the whole file.
//
// Zoom levels (reduced-resolution summaries) and the AutoSQL schema region
// are parsed only far enough to skip them.  Nothing here writes or mutates
// BigBed data.
package bigbed
