package heart

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

const rawTable = `id,age,sex,dataset,cp,trestbps,chol,fbs,restecg,thalch,exang,oldpeak,slope,ca,thal,num
1,63,Male,Cleveland,typical angina,145,233,TRUE,lv hypertrophy,150,FALSE,2.3,downsloping,0,fixed defect,0
2,67,Male,Cleveland,asymptomatic,160,286,FALSE,lv hypertrophy,108,TRUE,1.5,flat,3,normal,2
3,67,Male,Cleveland,asymptomatic,,229,FALSE,lv hypertrophy,129,TRUE,2.6,flat,2,reversable defect,1
4,37,Male,Cleveland,non-anginal,130,,FALSE,normal,187,FALSE,3.5,,,,0
5,41,Female,Hungary,atypical angina,130,204,,normal,172,FALSE,1.4,upsloping,0,normal,
`

func readRaw(t *testing.T) *dataset.Frame {
	t.Helper()
	f, err := dataset.ReadCSV(strings.NewReader(rawTable), "heart_disease_uci.csv")
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestCleanerClean(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	c := NewCleaner(WithCleanerLogger(logger))

	out, summary, err := c.Clean(readRaw(t))
	if err != nil {
		t.Fatal(err)
	}

	wantCols := "age,sex,cp,trestbps,chol,fbs,restecg,thalch,exang,oldpeak,slope,ca,thal,target"
	if got := strings.Join(out.Columns(), ","); got != wantCols {
		t.Errorf("columns = %s", got)
	}

	// Medians over present values: trestbps {145,160,130,130} -> 137.5,
	// chol {233,286,229,204} -> 231, ca {0,3,2,0} -> 1.
	checks := []struct {
		row  int
		col  string
		want string
	}{
		{2, ColTrestbps, "137.5"},
		{3, ColChol, "231"},
		{3, ColCA, "1"},
		{3, ColSlope, Missing},
		{3, ColThal, Missing},
		{4, ColFbs, Missing},
		{0, ColCP, "typical"},
		{0, ColFbs, "True"},
		{0, ColExang, "No"},
		{1, ColExang, "Yes"},
		{0, ColRestecg, "hypertrophy"},
		{0, ColThal, "fixed"},
		{0, ColTarget, "0"},
		{1, ColTarget, "1"},
		{2, ColTarget, "1"},
		{4, ColTarget, "0"},
	}
	for _, ck := range checks {
		if got := out.Get(ck.row, ck.col); got != ck.want {
			t.Errorf("row %d %s = %q, want %q", ck.row, ck.col, got, ck.want)
		}
	}

	for i := 0; i < out.NRows(); i++ {
		for _, col := range out.Columns() {
			if dataset.IsMissing(out.Get(i, col)) {
				t.Errorf("row %d column %s is still missing", i, col)
			}
		}
	}

	if summary.MissingTarget != 1 || summary.Positives != 2 || summary.Negatives != 3 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.Imputed[ColTrestbps] != 1 || summary.Imputed[ColSlope] != 1 {
		t.Errorf("unexpected imputation counts: %v", summary.Imputed)
	}
}

func TestCleanerMissingSeverity(t *testing.T) {
	raw := readRaw(t).Drop(ColSeverity)
	_, _, err := NewCleaner().Clean(raw)
	var mc *errors.MissingColumnError
	if !errors.As(err, &mc) || mc.Column != ColSeverity {
		t.Errorf("expected MissingColumnError for num, got %v", err)
	}
}

func TestCleanerDeterministic(t *testing.T) {
	c := NewCleaner()
	var outputs [2]bytes.Buffer
	for i := range outputs {
		out, _, err := c.Clean(readRaw(t))
		if err != nil {
			t.Fatal(err)
		}
		if err := out.WriteCSV(&outputs[i]); err != nil {
			t.Fatal(err)
		}
	}
	if outputs[0].String() != outputs[1].String() {
		t.Error("cleaning is not byte-deterministic")
	}
}

type fakeEDA struct {
	calls int
	dir   string
}

func (f *fakeEDA) RenderEDA(_ *dataset.Frame, dir string) error {
	f.calls++
	f.dir = dir
	return nil
}

func TestCleanFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "raw", "heart_disease_uci.csv")
	if err := os.MkdirAll(filepath.Dir(in), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(in, []byte(rawTable), 0o644); err != nil {
		t.Fatal(err)
	}

	logger, _ := log.NewTestLogger(log.LevelInfo)
	eda := &fakeEDA{}
	c := NewCleaner(WithCleanerLogger(logger), WithEDA(eda, filepath.Join(dir, "report")))

	out := filepath.Join(dir, "processed", "processed.csv")
	if _, err := c.CleanFile(in, out); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("cleaned table not written: %v", err)
	}
	if eda.calls != 1 {
		t.Errorf("EDA renderer called %d times", eda.calls)
	}
	if !logger.ContainsMessage("cleaned dataset saved") {
		t.Error("expected summary log line")
	}
	if !logger.ContainsMessage("rows with missing severity labelled negative") {
		t.Error("expected warning for missing severity")
	}
}
