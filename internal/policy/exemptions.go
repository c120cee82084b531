package policy

import (
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"

	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
)

// Exemption is a compiled, named exemption expression.
type Exemption struct {
	Name string
	prg  cel.Program
}

// newCELEnv declares one variable per finding field, named after the
// finding's JSON keys. Nullable fields are dyn and may be null.
func newCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("findingId", cel.StringType),
		cel.Variable("accountId", cel.StringType),
		cel.Variable("region", cel.StringType),
		cel.Variable("groupId", cel.StringType),
		cel.Variable("groupName", cel.StringType),
		cel.Variable("vpcId", cel.StringType),
		cel.Variable("direction", cel.StringType),
		cel.Variable("ipProtocol", cel.StringType),
		cel.Variable("fromPort", cel.DynType),
		cel.Variable("toPort", cel.DynType),
		cel.Variable("cidr", cel.DynType),
		cel.Variable("ipv6Cidr", cel.DynType),
		cel.Variable("description", cel.DynType),
		cel.Variable("remediationEligible", cel.BoolType),
	)
}

// CompileExemptions type-checks every expression in cfg. An expression must
// evaluate to bool (or dyn, checked at evaluation time).
func CompileExemptions(cfg []ExemptionConfig) ([]Exemption, error) {
	if len(cfg) == 0 {
		return nil, nil
	}
	env, err := newCELEnv()
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	out := make([]Exemption, 0, len(cfg))
	for _, ec := range cfg {
		ex, err := compileExemption(env, ec)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, nil
}

func compileExemption(env *cel.Env, ec ExemptionConfig) (Exemption, error) {
	ast, iss := env.Compile(ec.Expression)
	if iss != nil && iss.Err() != nil {
		return Exemption{}, fmt.Errorf("exemption %q: %w", ec.Name, iss.Err())
	}
	out := ast.OutputType()
	if !reflect.DeepEqual(out, cel.BoolType) && !reflect.DeepEqual(out, cel.DynType) {
		return Exemption{}, fmt.Errorf("exemption %q: expression must evaluate to bool, got %s", ec.Name, out)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return Exemption{}, fmt.Errorf("exemption %q: %w", ec.Name, err)
	}
	return Exemption{Name: ec.Name, prg: prg}, nil
}

// Matches evaluates the exemption against f. Evaluation errors and non-bool
// results count as a match: when the policy cannot be evaluated the finding
// is left alone.
func (e Exemption) Matches(f models.Finding) bool {
	val, _, err := e.prg.Eval(findingVars(f))
	if err != nil {
		return true
	}
	b, ok := val.Value().(bool)
	if !ok {
		return true
	}
	return b
}

func findingVars(f models.Finding) map[string]any {
	return map[string]any{
		"findingId":           f.FindingID,
		"accountId":           f.AccountID,
		"region":              f.Region,
		"groupId":             f.GroupID,
		"groupName":           f.GroupName,
		"vpcId":               f.VpcID,
		"direction":           f.Direction,
		"ipProtocol":          f.IPProtocol,
		"fromPort":            intOrNil(f.FromPort),
		"toPort":              intOrNil(f.ToPort),
		"cidr":                strOrNil(f.CIDR),
		"ipv6Cidr":            strOrNil(f.IPv6CIDR),
		"description":         strOrNil(f.Metadata.Description),
		"remediationEligible": f.RemediationEligible,
	}
}

func intOrNil(p *int32) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func strOrNil(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
