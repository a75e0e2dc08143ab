package main

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/pflag"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/reoring/docmap/classmap"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// usageError marks errors caused by the command line itself.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}
	var err error
	switch args[0] {
	case "inspect":
		err = inspectCmd(args[1:], stdin, stdout, stderr)
	case "check-overrides":
		err = checkOverridesCmd(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		usage(stderr)
		return 2
	}
	var ue usageError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, pflag.ErrHelp):
		return 0
	case errors.As(err, &ue):
		fmt.Fprintf(stderr, "docmap: %v\n", err)
		return 2
	default:
		fmt.Fprintf(stderr, "docmap: %v\n", err)
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "docmap CLI\n\nUsage:\n  docmap inspect [--compression auto|none|gzip|zstd] [--canonical] [-n N] FILE\n  docmap check-overrides FILE\n\nNotes:\n  - inspect prints each document of a BSON dump as indented extended JSON; FILE - reads stdin.\n  - check-overrides validates a YAML or JSON mapping override file.")
}

func inspectCmd(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	compression := fs.StringP("compression", "c", "auto", "input compression: auto, none, gzip or zstd")
	canonical := fs.Bool("canonical", false, "print canonical instead of relaxed extended JSON")
	limit := fs.IntP("limit", "n", 0, "stop after N documents (0 prints all)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return usageError{err}
	}
	if fs.NArg() != 1 {
		return usageError{errors.New("inspect needs exactly one FILE")}
	}

	var in io.Reader = stdin
	if name := fs.Arg(0); name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	r, closeFn, err := decompress(bufio.NewReader(in), *compression)
	if err != nil {
		return err
	}
	defer closeFn()

	br := bufio.NewReader(r)
	out := bufio.NewWriter(stdout)
	defer out.Flush()
	var buf bytes.Buffer
	for i := 0; *limit <= 0 || i < *limit; i++ {
		doc, err := readDocument(br)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("document %d: %w", i, err)
		}
		js, err := bson.MarshalExtJSON(doc, *canonical, false)
		if err != nil {
			return fmt.Errorf("document %d: %w", i, err)
		}
		buf.Reset()
		if err := json.Indent(&buf, js, "", "  "); err != nil {
			return fmt.Errorf("document %d: %w", i, err)
		}
		buf.WriteByte('\n')
		if _, err := out.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

func decompress(r *bufio.Reader, mode string) (io.Reader, func(), error) {
	if mode == "auto" {
		head, _ := r.Peek(4)
		switch {
		case bytes.HasPrefix(head, gzipMagic):
			mode = "gzip"
		case bytes.HasPrefix(head, zstdMagic):
			mode = "zstd"
		default:
			mode = "none"
		}
	}
	switch mode {
	case "none":
		return r, func() {}, nil
	case "gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, func() { zr.Close() }, nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return zr, zr.Close, nil
	}
	return nil, nil, usageError{fmt.Errorf("unknown compression %q", mode)}
}

// readDocument reads the next document of a dump. It returns io.EOF at a
// clean end of input.
func readDocument(r *bufio.Reader) (bson.Raw, error) {
	head, err := r.Peek(4)
	switch {
	case len(head) == 0 && errors.Is(err, io.EOF):
		return nil, io.EOF
	case err != nil:
		return nil, fmt.Errorf("truncated document length: %w", err)
	}
	if n := int32(binary.LittleEndian.Uint32(head)); n < 5 {
		return nil, fmt.Errorf("invalid document length %d", n)
	}
	doc, err := bson.ReadDocument(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func checkOverridesCmd(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("check-overrides", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return usageError{err}
	}
	if fs.NArg() != 1 {
		return usageError{errors.New("check-overrides needs exactly one FILE")}
	}
	o, err := classmap.LoadOverridesFile(fs.Arg(0))
	if err != nil {
		return err
	}
	members := 0
	for _, c := range o.Classes {
		members += len(c.Members)
	}
	fmt.Fprintf(stdout, "ok: %d classes, %d member overrides\n", len(o.Classes), members)
	return nil
}
