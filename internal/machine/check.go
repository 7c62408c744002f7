package machine

import (
	"fmt"

	"go.followtheprocess.codes/builder/internal/syntax"
	"go.followtheprocess.codes/builder/internal/syntax/parser"
)

// Check validates the directive structure and expressions of a single
// source without evaluating anything or fetching includes.
//
// Unlike Execute it does not stop at the first problem, every diagnostic is
// reported through handler and the returned error simply signifies whether
// there were any.
func Check(src, file string, handler syntax.ErrorHandler) error {
	hadErrors := false
	report := func(pos syntax.Position, msg string) {
		hadErrors = true
		if handler != nil {
			handler(pos, msg)
		}
	}

	condDepth := 0
	capturing := false
	sawElse := []bool{}

	for i, raw := range splitLines(src) {
		pos := syntax.Position{Name: file, Line: i + 1, StartCol: 1, EndCol: 1}
		line := syntax.ClassifyLine(raw)

		if capturing {
			switch line.Directive {
			case syntax.DirectiveEndMacro, syntax.DirectiveEnd:
				capturing = false
			case syntax.DirectiveMacro:
				report(pos, "nested macro")
			}
			continue
		}

		switch line.Directive {
		case syntax.DirectiveNone:
			checkSplices(raw, pos, report)

		case syntax.DirectiveSet:
			_, exprSrc, err := splitSet(line.Rest)
			if err != nil {
				report(pos, err.Error())
				continue
			}
			checkExpr(exprSrc, pos, report)

		case syntax.DirectiveMacro:
			checkExpr(line.Rest, pos, report)
			capturing = true

		case syntax.DirectiveEndMacro:
			report(pos, "@endmacro without matching @macro")

		case syntax.DirectiveIf:
			checkExpr(line.Rest, pos, report)
			condDepth++
			sawElse = append(sawElse, false)

		case syntax.DirectiveElseIf:
			if condDepth == 0 {
				report(pos, "@elseif without matching @if")
				continue
			}
			if sawElse[len(sawElse)-1] {
				report(pos, "@elseif after @else")
			}
			checkExpr(line.Rest, pos, report)

		case syntax.DirectiveElse:
			if condDepth == 0 {
				report(pos, "@else without matching @if")
				continue
			}
			if sawElse[len(sawElse)-1] {
				report(pos, "duplicate @else")
			}
			sawElse[len(sawElse)-1] = true

		case syntax.DirectiveEndIf, syntax.DirectiveEnd:
			if condDepth == 0 {
				report(pos, line.Directive.String()+" without matching @if")
				continue
			}
			condDepth--
			sawElse = sawElse[:len(sawElse)-1]

		case syntax.DirectiveError, syntax.DirectiveInclude:
			checkExpr(line.Rest, pos, report)
		}
	}

	if capturing {
		report(syntax.Position{Name: file, Line: 1, StartCol: 1, EndCol: 1}, "unclosed @macro")
	}
	if condDepth != 0 {
		report(syntax.Position{Name: file, Line: 1, StartCol: 1, EndCol: 1}, "unclosed @if")
	}

	if hadErrors {
		return fmt.Errorf("%s: %w", file, ErrSyntax)
	}

	return nil
}

// checkExpr parses an expression region purely for diagnostics.
func checkExpr(src string, pos syntax.Position, report syntax.ErrorHandler) {
	handler := func(errPos syntax.Position, msg string) {
		report(syntax.Position{
			Name:     pos.Name,
			Line:     pos.Line,
			StartCol: errPos.StartCol,
			EndCol:   errPos.EndCol,
		}, msg)
	}

	//nolint:errcheck // the handler has already seen every diagnostic
	parser.New(pos.Name, src, handler).Parse()
}

// checkSplices validates the inline splices on a text line.
func checkSplices(raw string, pos syntax.Position, report syntax.ErrorHandler) {
	segments, err := syntax.SplitSplices(raw)
	if err != nil {
		report(pos, err.Error())
		return
	}

	for _, segment := range segments {
		if segment.Splice {
			checkExpr(segment.Content, pos, report)
		}
	}
}
