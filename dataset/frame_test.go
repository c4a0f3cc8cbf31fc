package dataset

import (
	"bytes"
	"io/fs"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

const sample = "id,age,sex,num\n1,63,Male,0\n2,,Female,2\n3,41,,1\n"

func TestReadCSV(t *testing.T) {
	f, err := ReadCSV(strings.NewReader(sample), "raw.csv")
	if err != nil {
		t.Fatal(err)
	}
	if f.NRows() != 3 || f.NCols() != 4 {
		t.Fatalf("shape = (%d, %d), want (3, 4)", f.NRows(), f.NCols())
	}
	if got := f.Get(1, "sex"); got != "Female" {
		t.Errorf("Get(1, sex) = %q", got)
	}

	ages, err := f.Float("age")
	if err != nil {
		t.Fatal(err)
	}
	if ages[0] != 63 || !math.IsNaN(ages[1]) || ages[2] != 41 {
		t.Errorf("Float(age) = %v", ages)
	}
}

func TestReadCSVRejectsRaggedRows(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b\n1,2,3\n"), "bad.csv")
	var se *errors.SchemaError
	if !errors.As(err, &se) {
		t.Errorf("expected SchemaError, got %v", err)
	}
}

func TestFloatRejectsText(t *testing.T) {
	f, _ := ReadCSV(strings.NewReader("age\nold\n"), "t.csv")
	if _, err := f.Float("age"); err == nil {
		t.Error("expected error for non-numeric cell")
	}
}

func TestColumnMissing(t *testing.T) {
	f := New("t.csv", "a")
	_, err := f.Column("num")
	var mc *errors.MissingColumnError
	if !errors.As(err, &mc) || mc.Column != "num" {
		t.Errorf("expected MissingColumnError for num, got %v", err)
	}
}

func TestIsMissing(t *testing.T) {
	for _, s := range []string{"", " ", "NA", "NaN", "nan", "null", "None", "N/A"} {
		if !IsMissing(s) {
			t.Errorf("IsMissing(%q) = false", s)
		}
	}
	for _, s := range []string{"0", "missing", "False", "normal"} {
		if IsMissing(s) {
			t.Errorf("IsMissing(%q) = true", s)
		}
	}
}

func TestSelectDropTakeWithColumn(t *testing.T) {
	f, _ := ReadCSV(strings.NewReader(sample), "raw.csv")

	dropped := f.Drop("id", "dataset")
	if got := strings.Join(dropped.Columns(), ","); got != "age,sex,num" {
		t.Errorf("Drop columns = %s", got)
	}

	sel, err := f.Select("num", "age")
	if err != nil {
		t.Fatal(err)
	}
	if sel.Get(0, "num") != "0" || sel.Columns()[0] != "num" {
		t.Errorf("Select did not reorder columns: %v", sel.Columns())
	}

	taken := f.Take([]int{2, 0})
	if taken.Get(0, "id") != "3" || taken.Get(1, "id") != "1" {
		t.Errorf("Take order wrong: %v %v", taken.Row(0), taken.Row(1))
	}

	withTarget, err := f.WithColumn("target", []string{"0", "1", "1"})
	if err != nil {
		t.Fatal(err)
	}
	if withTarget.NCols() != 5 || f.NCols() != 4 {
		t.Error("WithColumn must not mutate the receiver")
	}
	if _, err := f.WithColumn("target", []string{"0"}); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	f, _ := ReadCSV(strings.NewReader(sample), "raw.csv")
	var buf bytes.Buffer
	if err := f.WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != sample {
		t.Errorf("round trip mismatch:\n%s", buf.String())
	}

	path := filepath.Join(t.TempDir(), "out", "t.csv")
	if err := f.WriteCSVFile(path); err != nil {
		t.Fatal(err)
	}
	back, err := ReadCSVFile(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if back.NRows() != 3 || back.Name != "t.csv" {
		t.Errorf("unexpected frame read back: %d rows, name %q", back.NRows(), back.Name)
	}
}

func TestReadCSVFileNotFound(t *testing.T) {
	_, err := ReadCSVFile(filepath.Join(t.TempDir(), "absent.csv"), "Run the clean command first.")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestFormatFloat(t *testing.T) {
	tests := map[float64]string{130: "130", 1.5: "1.5", -0.1: "-0.1", 0: "0"}
	for in, want := range tests {
		if got := FormatFloat(in); got != want {
			t.Errorf("FormatFloat(%v) = %q, want %q", in, got, want)
		}
	}
	if FormatFloat(math.NaN()) != "" {
		t.Error("NaN should format as empty")
	}
}
