// Package compiler provides the compilation pipeline for STCR scripts (.stcr files).
// It transforms source text into an immutable program through three phases:
// 1. Preprocessor: line cleaning, stopif synthesis and the header gate
// 2. Compiler: a single backward scan that emits instructions and symbol tables
// 3. Resolver: checkpoint names on jumps are replaced by instruction indices
//
// This package provides a unified API for compiling STCR scripts:
// - Compile: Compiles source text to a program
// - CompileWithOptions: Compiles with a program name
// - CompileFile: Compiles a file in a given text encoding
// - CompileScripts: Compiles scripts loaded by script.Loader
// - LoadRegistry: Loads and compiles a directory into a program.Registry
package compiler

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zurustar/stcr/pkg/compiler/boolexp"
	"github.com/zurustar/stcr/pkg/compiler/preprocessor"
	"github.com/zurustar/stcr/pkg/opcode"
	"github.com/zurustar/stcr/pkg/program"
	"github.com/zurustar/stcr/pkg/script"
	"github.com/zurustar/stcr/pkg/value"
)

// Structural keywords.
const (
	KeywordSegment    = "###"
	KeywordCheckpoint = "checkpoint"
	KeywordFunc       = "func"
	KeywordFuncEnd    = "END"
	KeywordJump       = "jump"
	KeywordCall       = "call"
	KeywordIf         = "if"
	KeywordElseIf     = "elseif"
	KeywordElse       = "else"
	KeywordEndIf      = "endif"
)

// CompileOptions provides configuration options for compilation.
type CompileOptions struct {
	// Name is recorded as the program's script identity.
	Name string
}

// Compile compiles source text to a program.
func Compile(source string) (*program.Program, error) {
	return CompileWithOptions(source, CompileOptions{})
}

// CompileWithOptions compiles source text with additional options.
func CompileWithOptions(source string, opts CompileOptions) (*program.Program, error) {
	source = strings.ReplaceAll(source, "\r\n", "\n")
	pre, err := preprocessor.Process(source)
	if err != nil {
		var he *preprocessor.HeaderError
		if errors.As(err, &he) {
			ce := NewCompilerErrorWithContext(PhasePreprocessor, ErrInvalidHeader, he.Message, he.Line, 1, source)
			ce.Cause = err
			return nil, ce
		}
		return nil, err
	}

	c := newCompiler(pre.Lines, source)
	if err := c.compile(); err != nil {
		return nil, err
	}
	if err := c.resolve(); err != nil {
		return nil, err
	}

	return &program.Program{
		Name:         opts.Name,
		Version:      pre.Version,
		Instructions: c.instructions,
		Segments:     c.segments,
		Checkpoints:  c.checkpoints,
		Functions:    c.functions,
		Lines:        c.lineNumbers(),
	}, nil
}

// CompileFile compiles a file. It reads the file, converts it from the given
// encoding to UTF-8 and compiles the content. The program is named after
// the file.
func CompileFile(path, encoding string) (*program.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	content, err := script.Decode(data, encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to convert encoding for %s: %w", path, err)
	}

	return CompileWithOptions(content, CompileOptions{Name: script.NameOf(path)})
}

// CompileResult represents the compilation result for a single script.
type CompileResult struct {
	// FileName is the name of the script file
	FileName string
	// Name is the script identity
	Name string
	// Program is the compiled program (nil if compilation failed)
	Program *program.Program
	// Err is the compilation error, if any
	Err error
}

// CompileScripts compiles scripts loaded by script.Loader. Each script is
// compiled independently; a failing script does not stop the others.
// Compiled artifacts are decoded instead of compiled.
func CompileScripts(scripts []script.Script) []CompileResult {
	results := make([]CompileResult, 0, len(scripts))

	for _, s := range scripts {
		var (
			p   *program.Program
			err error
		)
		if s.IsCompiled() {
			p, err = program.Unmarshal(s.Compiled)
			if p != nil && p.Name == "" {
				p.Name = s.Name
			}
		} else {
			p, err = CompileWithOptions(s.Content, CompileOptions{Name: s.Name})
		}
		if err != nil {
			err = fmt.Errorf("%s: %w", s.FileName, err)
		}

		results = append(results, CompileResult{
			FileName: s.FileName,
			Name:     s.Name,
			Program:  p,
			Err:      err,
		})
	}

	return results
}

// LoadRegistry loads every script the loader finds and registers the compiled programs
// by script identity. All compile errors are returned joined; programs that
// compiled successfully are still registered.
func LoadRegistry(loader *script.Loader) (*program.Registry, error) {
	scripts, err := loader.LoadAllScripts()
	if err != nil {
		return nil, fmt.Errorf("failed to load scripts from %s: %w", loader.Dir(), err)
	}

	reg := program.NewRegistry()
	var errs []error
	for _, res := range CompileScripts(scripts) {
		if res.Err != nil {
			errs = append(errs, res.Err)
			continue
		}
		if err := reg.Register(res.Name, res.Program); err != nil {
			errs = append(errs, err)
		}
	}
	return reg, errors.Join(errs...)
}

// chain is the running state of one if/elseif/else/endif chain while the
// lines are scanned from last to first.
type chain struct {
	next int // index of the next elseif/else/endif below
	end  int // index of the chain's endif
	line int // source line of the endif
}

type compiler struct {
	lines        []preprocessor.Line
	source       string
	instructions []opcode.Instruction

	segments    map[string]int
	checkpoints map[string]int
	functions   map[string]int

	// chain state for nested conditionals; cur.end < 0 means outside any chain
	cur    chain
	chains []chain
}

func newCompiler(lines []preprocessor.Line, source string) *compiler {
	return &compiler{
		lines:        lines,
		source:       source,
		instructions: make([]opcode.Instruction, len(lines)),
		segments:     make(map[string]int),
		checkpoints:  make(map[string]int),
		functions:    make(map[string]int),
		cur:          chain{next: -1, end: -1},
	}
}

// compile scans from the last line to the first so that every if/elseif
// already knows where the rest of its chain lives.
func (c *compiler) compile() error {
	for i := len(c.lines) - 1; i >= 0; i-- {
		if err := c.compileLine(i); err != nil {
			return err
		}
	}

	if len(c.chains) > 0 {
		return c.errorAt(c.cur.line, KeywordEndIf, ErrUnterminatedConditional, "endif without matching if")
	}
	return nil
}

func (c *compiler) compileLine(i int) error {
	line := c.lines[i].Text
	fields := strings.Fields(line)
	keyword := fields[0]

	if strings.HasPrefix(keyword, "#") {
		if keyword != KeywordSegment {
			return c.malformed(i, fmt.Sprintf("segment marker must be %q followed by a name", KeywordSegment))
		}
		name := strings.TrimSpace(strings.TrimPrefix(line, KeywordSegment))
		if name == "" {
			return c.malformed(i, "segment marker without a name")
		}
		return c.define(i, c.segments, opcode.Segment, "segment", name)
	}

	switch keyword {
	case KeywordCheckpoint:
		if len(fields) != 2 {
			return c.malformed(i, "checkpoint expects exactly one name")
		}
		return c.define(i, c.checkpoints, opcode.Checkpoint, "checkpoint", fields[1])

	case KeywordFunc:
		if len(fields) != 2 {
			return c.malformed(i, "func expects exactly one name")
		}
		if fields[1] == KeywordFuncEnd {
			c.instructions[i] = opcode.Instruction{Type: opcode.CallEnd}
			return nil
		}
		return c.define(i, c.functions, opcode.Func, "function", fields[1])

	case KeywordJump:
		if len(fields) != 2 {
			return c.malformed(i, "jump expects exactly one checkpoint")
		}
		c.instructions[i] = opcode.NewSymbolicJump(fields[1])
		return nil

	case KeywordCall:
		target := strings.TrimSpace(strings.TrimPrefix(line, KeywordCall))
		if target == "" {
			return c.malformed(i, "call without a target")
		}
		typ := opcode.InternalCall
		if value.IsExternal(target) {
			typ = opcode.ExternalCall
		}
		c.instructions[i] = opcode.Instruction{Type: typ, Key: target}
		return nil

	case KeywordIf, KeywordElseIf:
		return c.compileConditional(i, keyword, line)

	case KeywordElse:
		if c.cur.end < 0 {
			return c.errorAt(c.lines[i].Number, keyword, ErrUnterminatedConditional, "else without endif")
		}
		c.instructions[i] = opcode.Instruction{Type: opcode.Ignore}
		c.cur.next = i
		return nil

	case preprocessor.StopIf:
		if c.cur.end < 0 {
			return c.errorAt(c.lines[i].Number, "", ErrUnterminatedConditional, "else branch without endif")
		}
		c.instructions[i] = opcode.NewJump(c.cur.end)
		return nil

	case KeywordEndIf:
		c.chains = append(c.chains, c.cur)
		c.cur = chain{next: i, end: i, line: c.lines[i].Number}
		c.instructions[i] = opcode.Instruction{Type: opcode.Ignore}
		return nil
	}

	c.instructions[i] = compileCommand(line)
	return nil
}

// compileConditional emits a JumpIf whose fallback is the next link of the
// chain. An elseif becomes the next link for lines above it; an if closes the
// chain and restores the enclosing one.
func (c *compiler) compileConditional(i int, keyword, line string) error {
	if c.cur.end < 0 {
		return c.errorAt(c.lines[i].Number, keyword, ErrUnterminatedConditional, keyword+" without endif")
	}

	cond := strings.TrimSpace(strings.TrimPrefix(line, keyword))
	expr, err := boolexp.Parse(cond)
	if err != nil {
		ce := c.errorAt(c.lines[i].Number, cond, ErrParse, fmt.Sprintf("boolean expression %q is invalid", cond))
		ce.Phase = PhaseParser
		ce.Cause = err
		return ce
	}

	c.instructions[i] = opcode.NewJumpIf(expr, c.cur.next)

	if keyword == KeywordElseIf {
		c.cur.next = i
		return nil
	}
	c.cur = c.chains[len(c.chains)-1]
	c.chains = c.chains[:len(c.chains)-1]
	return nil
}

// compileCommand turns "name arg..." into a Command. A single argument keeps
// its own kind; zero or several arguments become an array.
func compileCommand(line string) opcode.Instruction {
	fields := value.Fields(line)
	args := fields[1:]
	if len(args) == 1 {
		return opcode.NewCommand(fields[0], value.New(args[0]))
	}
	return opcode.NewCommand(fields[0], value.NewArray(args))
}

func (c *compiler) define(i int, table map[string]int, typ opcode.Type, what, name string) error {
	if prev, exists := table[name]; exists {
		return c.errorAt(c.lines[i].Number, name, ErrDuplicateSymbol,
			fmt.Sprintf("%s %q already defined at line %d", what, name, c.lines[prev].Number))
	}
	table[name] = i
	c.instructions[i] = opcode.NewMarker(typ, name)
	return nil
}

// resolve replaces checkpoint names on jumps with instruction indices.
func (c *compiler) resolve() error {
	for i := range c.instructions {
		ins := &c.instructions[i]
		if ins.Type != opcode.Jump || ins.Key == "" {
			continue
		}
		target, ok := c.checkpoints[ins.Key]
		if !ok {
			return c.errorAt(c.lines[i].Number, ins.Key, ErrUnresolvedSymbol,
				fmt.Sprintf("checkpoint %q is not defined", ins.Key))
		}
		ins.Target = target
		ins.Key = ""
	}
	return nil
}

func (c *compiler) lineNumbers() []int {
	out := make([]int, len(c.lines))
	for i, l := range c.lines {
		out[i] = l.Number
	}
	return out
}

func (c *compiler) malformed(i int, message string) *CompileError {
	return c.errorAt(c.lines[i].Number, "", ErrMalformed, message)
}

func (c *compiler) errorAt(line int, token string, kind error, message string) *CompileError {
	column := columnOf(c.source, line, token)
	return NewCompilerErrorWithContext(PhaseCompiler, kind, message, line, column, c.source)
}
