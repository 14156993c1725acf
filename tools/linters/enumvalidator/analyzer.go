// Package enumvalidator reports string literals used where one of the
// model's string enums is expected.
package enumvalidator

import (
	"go/ast"
	"go/token"
	"go/types"
	"strings"

	"golang.org/x/tools/go/analysis"
)

var Analyzer = &analysis.Analyzer{
	Name: "enumvalidator",
	Doc:  "checks that model enums are set and compared through their constants, not string literals",
	Run:  run,
}

// EnumTypes lists the checked named types. Override with -types.
var EnumTypes = "Category,EventStatus,IssueStatus,PRStatus,PlanType,ExecutionStatus,Severity,IssueType,RequirementType"

func init() {
	Analyzer.Flags.StringVar(&EnumTypes, "types", EnumTypes, "comma-separated enum type names")
}

func run(pass *analysis.Pass) (any, error) {
	enums := map[string]bool{}
	for _, name := range strings.Split(EnumTypes, ",") {
		if name = strings.TrimSpace(name); name != "" {
			enums[name] = true
		}
	}

	for _, file := range pass.Files {
		ast.Inspect(file, func(n ast.Node) bool {
			switch n := n.(type) {
			case *ast.AssignStmt:
				for i, lhs := range n.Lhs {
					if i < len(n.Rhs) {
						check(pass, enums, lhs, n.Rhs[i])
					}
				}
			case *ast.KeyValueExpr:
				if key, ok := n.Key.(*ast.Ident); ok {
					check(pass, enums, key, n.Value)
				}
			case *ast.BinaryExpr:
				if n.Op == token.EQL || n.Op == token.NEQ {
					check(pass, enums, n.X, n.Y)
					check(pass, enums, n.Y, n.X)
				}
			}
			return true
		})
	}
	return nil, nil
}

func check(pass *analysis.Pass, enums map[string]bool, target, value ast.Expr) {
	if !isStringLiteral(value) {
		return
	}
	name, ok := enumName(pass, target)
	if !ok || !enums[name] {
		return
	}
	pass.Reportf(value.Pos(), "%s set from string literal %s; use a defined constant", name, value.(*ast.BasicLit).Value)
}

func enumName(pass *analysis.Pass, expr ast.Expr) (string, bool) {
	t := pass.TypesInfo.TypeOf(expr)
	if t == nil {
		if id, ok := expr.(*ast.Ident); ok {
			if obj := pass.TypesInfo.ObjectOf(id); obj != nil {
				t = obj.Type()
			}
		}
	}
	named, ok := t.(*types.Named)
	if !ok {
		return "", false
	}
	return named.Obj().Name(), true
}

func isStringLiteral(expr ast.Expr) bool {
	lit, ok := expr.(*ast.BasicLit)
	return ok && lit.Kind == token.STRING
}
