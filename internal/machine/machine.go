// Package machine implements the preprocessor driver: the state machine
// that consumes input lines, dispatches directives, runs conditionals,
// expands macros, splices expressions, recurses into includes and emits the
// transformed output.
package machine

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.followtheprocess.codes/builder/internal/deps"
	"go.followtheprocess.codes/builder/internal/eval"
	"go.followtheprocess.codes/builder/internal/source"
	"go.followtheprocess.codes/builder/internal/syntax"
	"go.followtheprocess.codes/builder/internal/syntax/parser"
)

var (
	// ErrSyntax is the error for ill-formed directives: unclosed @macro or
	// @if, stray @elseif/@else/@endif, nested @macro, a bad inline splice.
	ErrSyntax = errors.New("syntax error")

	// ErrCircularInclude is the error for an include that is already being
	// processed somewhere up the include stack.
	ErrCircularInclude = errors.New("circular include")

	// ErrUser is the error raised by the @error directive.
	ErrUser = errors.New("user error")
)

// maxIncludeDepth bounds include and macro nesting so runaway recursion
// fails cleanly instead of exhausting the stack.
const maxIncludeDepth = 1024

// frame is the per-include state: where we are, how we got here, and the
// metadata backing __FILE__, __PATH__ and friends.
type frame struct {
	file       string // __FILE__
	path       string // __PATH__
	repoRef    string // __REPO_REF__ for Git sources
	repoPrefix string // __REPO_PREFIX__ for Git sources
	resolvedID string // Identity of the source for cycle detection, empty for macro frames
	lineOffset int    // Added to the 1-based line index to get the real source line
	remote     bool   // Whether the source came from HTTP or Git
}

// macro is a registered macro definition. The body is the literal sequence
// of lines between @macro and @endmacro, captured verbatim.
type macro struct {
	name   string
	file   string // File the definition appeared in
	params []string
	body   []string
	line   int // Line of the @macro directive itself
}

// Options configures a [Machine].
type Options struct {
	// Dependencies pins include references to commits, see [deps.Map].
	Dependencies deps.Map

	// Defines seeds the global scope before processing.
	Defines map[string]eval.Value

	// Credentials is passed through to readers.
	Credentials source.Credentials

	// Warn receives warning-level diagnostics, e.g. macro redefinition.
	// May be nil.
	Warn syntax.ErrorHandler

	// GenerateLineControl emits #line markers whenever output switches to
	// a new source location.
	GenerateLineControl bool

	// RemoteRelativeIncludes resolves relative includes found in remote
	// sources against the remote location rather than the local one.
	RemoteRelativeIncludes bool

	// CacheIncludes memoises reads per resolved reference. The memo belongs
	// to the Machine and carries over between Execute calls unless
	// ClearCache is set.
	CacheIncludes bool

	// ClearCache empties the commit cache and the include memoisation at
	// the start of each Execute call.
	ClearCache bool

	// SaveDependencies records the commit each remote reference resolved
	// to, retrievable via [Machine.Dependencies].
	SaveDependencies bool
}

// Machine is the preprocessor driver.
//
// A Machine may be reused across Execute calls but is not safe for
// concurrent use.
type Machine struct {
	registry  *source.Registry
	env       *eval.Environment
	macros    map[string]macro
	deps      deps.Map
	cache     *source.CommitCache
	memo      map[string]source.ReadResult
	capturing *macro
	out       strings.Builder
	frames    []frame
	options   Options
	lastFile  string
	lastLine  int
}

// New returns a new [Machine] reading includes through registry.
func New(registry *source.Registry, options Options) *Machine {
	return &Machine{
		registry: registry,
		options:  options,
		cache:    source.NewCommitCache(),
		memo:     make(map[string]source.ReadResult),
	}
}

// Dependencies returns the dependency map including any pins recorded
// during Execute.
func (m *Machine) Dependencies() deps.Map {
	return m.deps
}

// Execute preprocesses src, where file is the name the source was read
// from, returning the transformed output.
//
// Any error is fatal to the whole call, there is no partial recovery.
func (m *Machine) Execute(src, file string) (string, error) {
	m.env = eval.NewEnvironment()
	for name, value := range m.options.Defines {
		m.env.SetGlobal(name, value)
	}

	m.macros = make(map[string]macro)
	m.capturing = nil
	m.frames = nil
	m.out.Reset()
	m.lastFile = ""
	m.lastLine = 0

	m.deps = m.options.Dependencies
	if m.deps == nil && m.options.SaveDependencies {
		m.deps = make(deps.Map)
	}

	if m.options.ClearCache {
		m.cache.Clear()
		clear(m.memo)
	}

	root := frame{
		file:       filepath.Base(file),
		path:       filepath.Dir(file),
		resolvedID: file,
	}

	if err := m.processSource(src, root); err != nil {
		return "", err
	}

	output := m.out.String()
	if !strings.HasSuffix(src, "\n") {
		output = strings.TrimSuffix(output, "\n")
	}

	return output, nil
}

// processSource runs the per-line state machine over one source, in the
// context of the given frame.
func (m *Machine) processSource(src string, fr frame) error {
	if len(m.frames) >= maxIncludeDepth {
		return fmt.Errorf("%w: include depth exceeds %d, runaway recursion?", ErrCircularInclude, maxIncludeDepth)
	}

	m.frames = append(m.frames, fr)
	m.env.Push(frameBindings(fr))
	defer func() {
		m.env.Pop()
		m.frames = m.frames[:len(m.frames)-1]
	}()

	cond := &condStack{}

	for i, raw := range splitLines(src) {
		lineNo := fr.lineOffset + i + 1
		pos := syntax.Position{Name: fr.file, Line: lineNo, StartCol: 1, EndCol: 1}
		line := syntax.ClassifyLine(raw)

		// A @macro definition captures every line up to @endmacro verbatim
		if m.capturing != nil {
			switch line.Directive {
			case syntax.DirectiveEndMacro, syntax.DirectiveEnd:
				m.register(*m.capturing, pos)
				m.capturing = nil
			case syntax.DirectiveMacro:
				return fmt.Errorf("%s: %w: nested macro", pos, ErrSyntax)
			default:
				m.capturing.body = append(m.capturing.body, raw)
			}
			continue
		}

		// In a dead conditional branch only the conditional directives are
		// interpreted, and then only to track nesting. Nothing else runs,
		// macro definitions in dead branches are not registered.
		switch line.Directive {
		case syntax.DirectiveIf:
			active := false
			if cond.Active() {
				value, err := m.evalExpr(line.Rest, pos)
				if err != nil {
					return err
				}
				active = value.Truthy()
			}
			cond.Push(active, lineNo)
			continue

		case syntax.DirectiveElseIf:
			if cond.Depth() == 0 {
				return fmt.Errorf("%s: %w: @elseif without matching @if", pos, ErrSyntax)
			}
			if cond.SawElse() {
				return fmt.Errorf("%s: %w: @elseif after @else", pos, ErrSyntax)
			}
			value := false
			if cond.NeedsEval() {
				evaluated, err := m.evalExpr(line.Rest, pos)
				if err != nil {
					return err
				}
				value = evaluated.Truthy()
			}
			cond.Elif(value)
			continue

		case syntax.DirectiveElse:
			if cond.Depth() == 0 {
				return fmt.Errorf("%s: %w: @else without matching @if", pos, ErrSyntax)
			}
			if cond.SawElse() {
				return fmt.Errorf("%s: %w: duplicate @else", pos, ErrSyntax)
			}
			cond.Else()
			continue

		case syntax.DirectiveEndIf:
			if cond.Depth() == 0 {
				return fmt.Errorf("%s: %w: @endif without matching @if", pos, ErrSyntax)
			}
			cond.Pop()
			continue

		case syntax.DirectiveEnd:
			// @end closes the innermost open construct, which here can
			// only be a conditional. @macro capture handles its own @end.
			if cond.Depth() == 0 {
				return fmt.Errorf("%s: %w: @end without matching @macro or @if", pos, ErrSyntax)
			}
			cond.Pop()
			continue
		}

		if !cond.Active() {
			continue
		}

		switch line.Directive {
		case syntax.DirectiveSet:
			if err := m.set(line.Rest, pos); err != nil {
				return err
			}

		case syntax.DirectiveMacro:
			capture, err := m.parseMacroHeader(line.Rest, pos)
			if err != nil {
				return err
			}
			capture.file = fr.file
			capture.line = lineNo
			m.capturing = &capture

		case syntax.DirectiveEndMacro:
			return fmt.Errorf("%s: %w: @endmacro without matching @macro", pos, ErrSyntax)

		case syntax.DirectiveError:
			value, err := m.evalExpr(line.Rest, pos)
			if err != nil {
				return err
			}
			return fmt.Errorf("%s: %w: %s", pos, ErrUser, value)

		case syntax.DirectiveInclude:
			if err := m.include(line.Rest, pos, fr); err != nil {
				return err
			}

		default:
			if err := m.text(raw, pos, fr); err != nil {
				return err
			}
		}
	}

	if m.capturing != nil {
		pos := syntax.Position{Name: m.capturing.file, Line: m.capturing.line, StartCol: 1, EndCol: 1}
		return fmt.Errorf("%s: %w: unclosed @macro %s", pos, ErrSyntax, m.capturing.name)
	}

	if cond.Depth() != 0 {
		pos := syntax.Position{Name: fr.file, Line: cond.UnclosedLine(), StartCol: 1, EndCol: 1}
		return fmt.Errorf("%s: %w: unclosed @if", pos, ErrSyntax)
	}

	return nil
}

// register stores a completed macro definition, warning on redefinition.
func (m *Machine) register(mac macro, pos syntax.Position) {
	if _, exists := m.macros[mac.name]; exists && m.options.Warn != nil {
		m.options.Warn(pos, fmt.Sprintf("macro %s redefined, previous definition is overwritten", mac.name))
	}
	m.macros[mac.name] = mac
}

// set implements @set IDENT EXPR and @set IDENT = EXPR, assigning into the
// global scope.
func (m *Machine) set(rest string, pos syntax.Position) error {
	name, exprSrc, err := splitSet(rest)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", pos, ErrSyntax, err)
	}

	value, err := m.evalExpr(exprSrc, pos)
	if err != nil {
		return err
	}

	m.env.SetGlobal(name, value)
	return nil
}

// text emits a passthrough line, evaluating any inline `@{...}` splices.
func (m *Machine) text(raw string, pos syntax.Position, fr frame) error {
	if !strings.Contains(raw, "@{") {
		m.emit(raw, fr.file, pos.Line)
		return nil
	}

	segments, err := syntax.SplitSplices(raw)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", pos, ErrSyntax, err)
	}

	var b strings.Builder
	for _, segment := range segments {
		if !segment.Splice {
			b.WriteString(segment.Content)
			continue
		}

		value, err := m.evalExpr(segment.Content, pos)
		if err != nil {
			return err
		}

		// null splices to the empty string, not "null"
		if !value.IsNull() {
			b.WriteString(value.String())
		}
	}

	m.emit(b.String(), fr.file, pos.Line)
	return nil
}

// emit writes a single output line, preceded by a #line marker when line
// control is on and the location is not the natural successor of the
// previous emission.
func (m *Machine) emit(text, file string, line int) {
	if m.options.GenerateLineControl && (file != m.lastFile || line != m.lastLine+1) {
		fmt.Fprintf(&m.out, "#line %d %q\n", line, file)
	}

	m.out.WriteString(text)
	m.out.WriteByte('\n')
	m.lastFile = file
	m.lastLine = line
}

// parseExpr parses an expression region, remapping diagnostic positions
// onto the real source line.
func (m *Machine) parseExpr(src string, pos syntax.Position) (syntax.Expr, error) {
	var detail string
	handler := func(errPos syntax.Position, msg string) {
		if detail == "" {
			detail = fmt.Sprintf("%s:%d:%d: %s", pos.Name, pos.Line, errPos.StartCol, msg)
		}
	}

	expr, err := parser.New(pos.Name, src, handler).Parse()
	if err != nil {
		if detail == "" {
			detail = fmt.Sprintf("%s:%d: bad expression", pos.Name, pos.Line)
		}
		return nil, fmt.Errorf("%s: %w", detail, err)
	}

	return expr, nil
}

// evalExpr parses and evaluates an expression region, wrapping any
// evaluation error with the source position.
func (m *Machine) evalExpr(src string, pos syntax.Position) (eval.Value, error) {
	expr, err := m.parseExpr(src, pos)
	if err != nil {
		return eval.Null, err
	}

	value, err := eval.Eval(expr, m.env, pos)
	if err != nil {
		return eval.Null, fmt.Errorf("%s: %w", pos, err)
	}

	return value, nil
}

// frameBindings is the scope of location pseudo-variables pushed for the
// duration of a frame. __FILE__ and __LINE__ come from the evaluator
// directly, the rest only change per frame.
func frameBindings(fr frame) map[string]eval.Value {
	bindings := map[string]eval.Value{
		"__PATH__": eval.String(fr.path),
	}
	if fr.repoRef != "" {
		bindings["__REPO_REF__"] = eval.String(fr.repoRef)
	}
	if fr.repoPrefix != "" {
		bindings["__REPO_PREFIX__"] = eval.String(fr.repoPrefix)
	}
	return bindings
}

// splitSet splits the body of a @set directive into the target identifier
// and the expression source.
func splitSet(rest string) (name, exprSrc string, err error) {
	rest = strings.TrimSpace(rest)

	end := 0
	for end < len(rest) && isIdentChar(rest[end]) {
		end++
	}

	name = rest[:end]
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		return "", "", errors.New("@set requires an identifier to assign to")
	}

	exprSrc = strings.TrimSpace(rest[end:])
	if after, ok := strings.CutPrefix(exprSrc, "="); ok && !strings.HasPrefix(exprSrc, "==") {
		exprSrc = strings.TrimSpace(after)
	}
	if exprSrc == "" {
		return "", "", errors.New("@set requires an expression")
	}

	return name, exprSrc, nil
}

// parseMacroHeader parses `NAME(p1, p2, ...)` from the body of a @macro
// directive.
func (m *Machine) parseMacroHeader(rest string, pos syntax.Position) (macro, error) {
	expr, err := m.parseExpr(rest, pos)
	if err != nil {
		return macro{}, err
	}

	switch header := expr.(type) {
	case syntax.Ident:
		return macro{name: header.Name}, nil
	case syntax.CallExpr:
		params := make([]string, 0, len(header.Args))
		for _, arg := range header.Args {
			param, ok := arg.(syntax.Ident)
			if !ok {
				return macro{}, fmt.Errorf("%s: %w: macro parameters must be identifiers", pos, ErrSyntax)
			}
			params = append(params, param.Name)
		}
		return macro{name: header.Fn, params: params}, nil
	default:
		return macro{}, fmt.Errorf("%s: %w: bad @macro, want NAME(param, ...)", pos, ErrSyntax)
	}
}

// splitLines splits a source into its lines, normalising the trailing
// newline away so it doesn't read as an extra empty line.
func splitLines(src string) []string {
	if src == "" {
		return nil
	}

	lines := strings.Split(src, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
