package jsonl

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tokensplit/pkg/types"
)

func TestRead(t *testing.T) {
	input := strings.Join([]string{
		`{"id":"1","title":"one","text":"alpha"}`,
		``,
		`not json`,
		`  {"id":"2","text":"beta","extra":true}  `,
		`[1,2,3]`,
		`{"id":"3","text":42}`,
		`{"title":"no id"}`,
	}, "\n")

	res, err := Read(strings.NewReader(input), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Malformed)
	require.Len(t, res.Documents, 3)

	assert.Equal(t, types.Document{
		ID: "1", Title: "one", Text: "alpha",
		Raw:  []byte(`{"id":"1","title":"one","text":"alpha"}`),
		Line: 1,
	}, res.Documents[0])

	assert.Equal(t, "2", res.Documents[1].ID)
	assert.Equal(t, `{"id":"2","text":"beta","extra":true}`, string(res.Documents[1].Raw))
	assert.Equal(t, 4, res.Documents[1].Line)

	assert.Equal(t, "", res.Documents[2].ID)
	assert.Equal(t, "no id", res.Documents[2].Title)
	assert.Equal(t, "", res.Documents[2].Text)
}

func TestRead_RawIsNotAliased(t *testing.T) {
	input := `{"id":"a","text":"x"}` + "\n" + `{"id":"b","text":"y"}` + "\n"
	res, err := Read(strings.NewReader(input), nil)
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, `{"id":"a","text":"x"}`, string(res.Documents[0].Raw))
}

func TestParseLine_Unicode(t *testing.T) {
	doc, err := ParseLine([]byte(`{"id":"j","text":"日本語;<h1/>テキスト"}`))
	require.NoError(t, err)
	assert.Equal(t, "日本語;<h1/>テキスト", doc.Text)
}

func TestParseLine_FieldTypes(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    types.Document
		wantErr bool
	}{
		{name: "strings", line: `{"id":"a","title":"t","text":"x"}`, want: types.Document{ID: "a", Title: "t", Text: "x"}},
		{name: "null fields", line: `{"id":null,"title":null,"text":"x"}`, want: types.Document{Text: "x"}},
		{name: "numeric id", line: `{"id":123,"text":"x"}`, wantErr: true},
		{name: "boolean title", line: `{"id":"a","title":true,"text":"x"}`, wantErr: true},
		{name: "object id", line: `{"id":{"k":1},"text":"x"}`, wantErr: true},
		{name: "array text", line: `{"id":"a","text":["x"]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseLine([]byte(tt.line))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedLine)
				return
			}
			require.NoError(t, err)
			doc.Raw = nil
			assert.Equal(t, tt.want, doc)
		})
	}
}

func TestWriter(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)

	require.NoError(t, w.WriteRecord(types.Record{ID: "a_part1", Title: "t_part1", Text: "x <y> & 日本"}))
	require.NoError(t, w.WriteRecord(types.Record{ID: "ignored", Raw: []byte(`{"id":"b","keep":1}`)}))
	require.NoError(t, w.WriteRaw([]byte(`{"id":"q"}`)))
	require.NoError(t, w.Flush())

	assert.Equal(t,
		`{"id":"a_part1","title":"t_part1","text":"x <y> & 日本"}`+"\n"+
			`{"id":"b","keep":1}`+"\n"+
			`{"id":"q"}`+"\n",
		out.String())
	assert.Equal(t, 3, w.Lines())
}

func TestWriteReadRoundTrip(t *testing.T) {
	records := []types.Record{
		{ID: "1", Title: "a", Text: "first;<h1/>second"},
		{ID: "2", Title: "b", Text: "line\nbreak \"quoted\""},
	}

	var out bytes.Buffer
	w := NewWriter(&out)
	for _, r := range records {
		require.NoError(t, w.WriteRecord(r))
	}
	require.NoError(t, w.Flush())

	res, err := Read(&out, nil)
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)
	for i, doc := range res.Documents {
		doc.Raw = nil
		assert.Equal(t, records[i], doc.Record())
	}
}

func TestCreateAndWriteSummary(t *testing.T) {
	dir := t.TempDir()
	paths := PathsFor("/data/in/corpus.jsonl", filepath.Join(dir, "split"), filepath.Join(dir, "exceeding"), filepath.Join(dir, "summary"))

	assert.Equal(t, filepath.Join(dir, "split", "corpus.jsonl"), paths.Output)
	assert.Equal(t, filepath.Join(dir, "exceeding", "corpus.jsonl"), paths.Quarantine)
	assert.Equal(t, filepath.Join(dir, "summary", "corpus_summary.json"), paths.Summary)

	fw, err := Create(paths.Output)
	require.NoError(t, err)
	require.NoError(t, fw.WriteRecord(types.Record{ID: "x", Text: "y"}))
	require.NoError(t, fw.Close())

	data, err := os.ReadFile(paths.Output)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"x","title":"","text":"y"}`+"\n", string(data))

	summary := types.NewRunSummary("run-1")
	summary.AddReport(types.Report{ID: "x", Classification: types.ClassFitsAsIs, OriginalTokens: 3})
	require.NoError(t, WriteSummary(paths.Summary, summary))

	raw, err := os.ReadFile(paths.Summary)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n    \"run_id\": \"run-1\"")

	var decoded types.RunSummary
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 1, decoded.InputDocuments)
	assert.Equal(t, 1, decoded.Counts[types.ClassFitsAsIs])
}

func TestGlob(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.jsonl", "b.jsonl", "nested/c.jsonl", "nested/skip.txt"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	}

	files, err := Glob([]string{
		filepath.Join(dir, "**", "*.jsonl"),
		filepath.Join(dir, "a.jsonl"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.jsonl"),
		filepath.Join(dir, "b.jsonl"),
		filepath.Join(dir, "nested", "c.jsonl"),
	}, files)

	literal, err := Glob([]string{"/does/not/exist.jsonl"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/does/not/exist.jsonl"}, literal)
}

func TestPlanPaths(t *testing.T) {
	out, q, sum := "/out/split", "/out/exceeding", "/out/summary"

	plans, err := PlanPaths([]string{"/data/a/x.jsonl", "/data/b/y.jsonl"}, out, q, sum)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, filepath.Join(out, "x.jsonl"), plans[0].Output)
	assert.Equal(t, filepath.Join(sum, "y_summary.json"), plans[1].Summary)

	_, err = PlanPaths([]string{"/data/a/x.jsonl", "/data/b/x.jsonl"}, out, q, sum)
	require.ErrorIs(t, err, ErrOutputCollision)
	assert.Contains(t, err.Error(), "/data/a/x.jsonl")
	assert.Contains(t, err.Error(), "/data/b/x.jsonl")

	// different extensions still share the summary file
	_, err = PlanPaths([]string{"/data/x.jsonl", "/data/x.json"}, out, q, sum)
	assert.ErrorIs(t, err, ErrOutputCollision)

	// one input whose chunk and quarantine files would be the same file
	_, err = PlanPaths([]string{"/data/x.jsonl"}, out, out, sum)
	assert.ErrorIs(t, err, ErrOutputCollision)
}
