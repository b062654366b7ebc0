package output

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/LJTian/CryptoNewsHub/internal/collector"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"

	JSONFile = "latest.json"
	CSVFile  = "latest.csv"
	HTMLFile = "latest.html"
)

var ErrUnsupportedFormat = errors.New("unsupported output format")

// csvHeader 与 Item 的 JSON 字段一致
var csvHeader = []string{"platform", "source", "title", "url", "summary", "published"}

// ValidFormat 只接受 json / csv
func ValidFormat(format string) bool {
	return format == FormatJSON || format == FormatCSV
}

// Writer 把一次运行的最终结果写到 Dir 目录下
type Writer struct {
	Dir      string
	Location *time.Location
}

func NewWriter(dir string, loc *time.Location) *Writer {
	if loc == nil {
		loc = time.UTC
	}
	return &Writer{Dir: dir, Location: loc}
}

// Write 写结果文件和 HTML 页面，返回写出的文件路径。格式不支持时什么都不写
func (w *Writer) Write(items []collector.Item, format string, now time.Time) ([]string, error) {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	results, err := WriteResults(items, w.Dir, format)
	if err != nil {
		return nil, err
	}
	page, err := WriteHTML(items, w.Dir, now.In(loc).Format(time.DateOnly))
	if err != nil {
		return []string{results}, err
	}
	return []string{results, page}, nil
}

// WriteResults 按 format 写出 latest.json 或 latest.csv，已存在的文件会被覆盖
func WriteResults(items []collector.Item, dir, format string) (string, error) {
	var (
		name  string
		write func(io.Writer, []collector.Item) error
	)
	switch format {
	case FormatJSON:
		name, write = JSONFile, encodeJSON
	case FormatCSV:
		name, write = CSVFile, encodeCSV
	default:
		return "", fmt.Errorf("output: %w: %q", ErrUnsupportedFormat, format)
	}

	path := filepath.Join(dir, name)
	if err := writeFile(path, func(f io.Writer) error { return write(f, items) }); err != nil {
		return "", err
	}
	return path, nil
}

func encodeJSON(w io.Writer, items []collector.Item) error {
	if items == nil {
		items = []collector.Item{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

func encodeCSV(w io.Writer, items []collector.Item) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, it := range items {
		row := []string{string(it.Platform), it.Source, it.Title, it.URL, it.Summary, it.Published}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var pageTmpl = template.Must(template.New("page").Parse(`<html><head><meta charset='UTF-8'><title>Crypto News</title></head><body>
<h1>Crypto News for {{.Today}}</h1>
<ul>
{{range .Items}}  <li><a href='{{.URL}}' target='_blank'>{{.Title}}</a> - {{.Platform}} ({{.Source}})</li>
{{end}}</ul>
</body></html>
`))

type pageData struct {
	Today string
	Items []collector.Item
}

// WriteHTML 渲染 latest.html；today 为 YYYY-MM-DD。所有字段都经过转义，空链接用占位符
func WriteHTML(items []collector.Item, dir, today string) (string, error) {
	rows := make([]collector.Item, len(items))
	for i, it := range items {
		if it.URL == "" {
			it.URL = collector.PlaceholderURL
		}
		rows[i] = it
	}

	path := filepath.Join(dir, HTMLFile)
	err := writeFile(path, func(f io.Writer) error {
		return pageTmpl.Execute(f, pageData{Today: today, Items: rows})
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// ReadJSON 读回 latest.json
func ReadJSON(path string) ([]collector.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("output: open %s: %w", path, err)
	}
	defer f.Close()

	var items []collector.Item
	if err := json.NewDecoder(f).Decode(&items); err != nil {
		return nil, fmt.Errorf("output: decode %s: %w", path, err)
	}
	return items, nil
}

// writeFile 创建目录并截断写入；关闭失败同样当作写入失败
func writeFile(path string, fill func(io.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("output: create dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("output: close %s: %w", path, cerr)
		}
	}()

	if err := fill(f); err != nil {
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	return nil
}
