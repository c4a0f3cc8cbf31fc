package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// ReadCSV parses a headed CSV table.
func ReadCSV(r io.Reader, name string) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.NewSchemaError(name, "empty file")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read header of %s", name)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	f := New(name, header...)
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "%s line %d", name, line)
		}
		if err := f.AppendRow(record...); err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
	}
	return f, nil
}

// ReadCSVFile opens path and parses it. A missing file yields a
// FileNotFoundError carrying hint.
func ReadCSVFile(path, hint string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path, hint)
		}
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()
	return ReadCSV(file, filepath.Base(path))
}

// WriteCSV writes the header and rows. Output is a pure function of the
// frame's contents.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.columns); err != nil {
		return errors.Wrap(err, "write header")
	}
	if err := cw.WriteAll(f.rows); err != nil {
		return errors.Wrap(err, "write rows")
	}
	return nil
}

// WriteCSVFile writes the frame to path, creating parent directories.
func (f *Frame) WriteCSVFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := f.WriteCSV(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
