// Package script はSTCRスクリプトファイルの検出と読み込みを行う
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// SourceExt はソースファイルの拡張子
	SourceExt = ".stcr"
	// CompiledExt はコンパイル済みアーティファクトの拡張子
	CompiledExt = ".stcrc"
	// DefaultEncoding は既定の文字エンコーディング
	DefaultEncoding = "utf-8"
)

// Script はスクリプトファイルを表す
type Script struct {
	FileName string // ファイル名
	Name     string // 拡張子を除いたファイル名（スクリプトの識別子）
	Content  string // UTF-8に変換された内容（ソースの場合）
	Compiled []byte // コンパイル済みアーティファクト（.stcrcの場合）
	Size     int64  // ファイルサイズ
}

// IsCompiled はコンパイル済みアーティファクトかどうかを返す
func (s *Script) IsCompiled() bool {
	return s.Compiled != nil
}

// Loader はスクリプトファイルの読み込みを行う
type Loader struct {
	dir      string
	encoding string
}

// LoaderOption はLoaderの設定オプション
type LoaderOption func(*Loader)

// WithEncoding はソースの文字エンコーディングを設定する（WHATWG名: utf-8, shift_jis など）
func WithEncoding(name string) LoaderOption {
	return func(l *Loader) {
		if name != "" {
			l.encoding = name
		}
	}
}

// NewLoader Loaderを作成
func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{
		dir:      dir,
		encoding: DefaultEncoding,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir は検索対象ディレクトリを返す
func (l *Loader) Dir() string {
	return l.dir
}

// LoadAllScripts すべての.stcr/.stcrcファイルを読み込む
// 同じ名前のソースとアーティファクトがある場合はソースを優先する
func (l *Loader) LoadAllScripts() ([]Script, error) {
	scriptFiles, err := l.findScriptFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to find script files: %w", err)
	}

	if len(scriptFiles) == 0 {
		return nil, fmt.Errorf("no script files found in %s", l.dir)
	}

	byName := make(map[string]Script)
	for _, filePath := range scriptFiles {
		s, err := l.LoadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load script %s: %w", filePath, err)
		}
		if prev, ok := byName[s.Name]; ok && !prev.IsCompiled() {
			continue
		}
		byName[s.Name] = *s
	}

	scripts := make([]Script, 0, len(byName))
	for _, s := range byName {
		scripts = append(scripts, s)
	}
	sort.Slice(scripts, func(i, j int) bool {
		return scripts[i].Name < scripts[j].Name
	})
	return scripts, nil
}

// findScriptFiles .stcr/.stcrcファイルを検出（case-insensitive）
func (l *Loader) findScriptFiles() ([]string, error) {
	var scriptFiles []string

	err := filepath.Walk(l.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		// 拡張子をcase-insensitiveで比較
		if IsScriptFile(path) {
			scriptFiles = append(scriptFiles, path)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Strings(scriptFiles)
	return scriptFiles, nil
}

// IsScriptFile はパスがスクリプトまたはアーティファクトかどうかを返す
func IsScriptFile(path string) bool {
	ext := filepath.Ext(path)
	return strings.EqualFold(ext, SourceExt) || strings.EqualFold(ext, CompiledExt)
}

// NameOf はパスからスクリプトの識別子を得る
func NameOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadFile 単一のスクリプトファイルを読み込む
func (l *Loader) LoadFile(path string) (*Script, error) {
	// ファイル情報を取得
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	// ファイルを読み込む
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	s := &Script{
		FileName: filepath.Base(path),
		Name:     NameOf(path),
		Size:     info.Size(),
	}

	// アーティファクトはデコードせずそのまま保持する
	if strings.EqualFold(filepath.Ext(path), CompiledExt) {
		s.Compiled = data
		return s, nil
	}

	content, err := Decode(data, l.encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to convert encoding: %w", err)
	}
	s.Content = content
	return s, nil
}

// Decode は指定されたエンコーディングからUTF-8に変換する
// 先頭にBOMがある場合はBOMが優先される
func Decode(data []byte, name string) (string, error) {
	enc, err := Lookup(name)
	if err != nil {
		return "", err
	}

	decoder := unicode.BOMOverride(enc.NewDecoder())
	out, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return string(out), nil
}

// Lookup はWHATWGのエンコーディング名からEncodingを得る
func Lookup(name string) (encoding.Encoding, error) {
	if name == "" || strings.EqualFold(name, DefaultEncoding) || strings.EqualFold(name, "utf8") {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	return enc, nil
}

// FindFile はパスが存在すればそのまま返し、存在しなければ同じディレクトリ内で
// 大文字小文字を区別せずにファイル名を探す（MAIN.STCR と main.stcr など）
func FindFile(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(entry.Name(), name) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("file not found: %s: %w", path, os.ErrNotExist)
}
