/*Command bio-bigbed-to-bed converts a BigBed file to BED text.  Output
  goes to the named file, or to stdout when no output path is given.

  Usage: bio-bigbed-to-bed [OPTIONS] input.bb [output.bed]

  -chr, -start and -end restrict output to part of one chromosome, and
  -max caps the total number of lines emitted.
*/
package main
