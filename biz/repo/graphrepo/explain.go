package graphrepo

import (
	"go.uber.org/zap"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query/generator"
	"neo4jogm/biz/query/part"
)

// Explanation 派生方法生成的语句，不执行
type Explanation struct {
	Method     string         `json:"method"`
	Subject    string         `json:"subject"`
	Cypher     string         `json:"cypher"`
	Parameters map[string]any `json:"parameters"`
}

// Explain 解析方法名并渲染出语句。实参不足时补 nil。
func Explain(mctx *mapping.Context, nd *mapping.NodeDescription, gen *generator.Generator, style QueryStyle,
	useLabels bool, name string, args []any, logger *zap.Logger) (*Explanation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gen == nil {
		gen = generator.Default
	}
	m, err := deriveMethod(mctx, nd, name, style, useLabels, logger)
	if err != nil {
		return nil, err
	}
	want := 0
	if m.legacy != nil {
		want = m.legacy.NumberOfParameters()
	} else {
		want = m.definition.NumberOfArguments()
	}
	for len(args) < want {
		args = append(args, nil)
	}

	q, params, err := m.prepare(nd, args)
	if err != nil {
		return nil, err
	}
	out := &Explanation{Method: name, Subject: m.tree.Subject.String()}
	if !q.IsFilterQuery() {
		out.Cypher = q.CypherQuery(params.Sort())
		out.Parameters = q.Parameters
		return out, nil
	}
	opts := generator.LoadOptions{Sort: params.Sort(), Limit: q.Limit, Distinct: q.Distinct}
	switch m.tree.Subject {
	case part.SubjectCount, part.SubjectExists:
		opts.Mode = generator.ModeCount
	case part.SubjectDelete:
		opts.Mode = generator.ModeDelete
	}
	out.Cypher, out.Parameters, err = gen.FilterQuery(nd, q.Filters, opts)
	if err != nil {
		return nil, err
	}
	return out, nil
}
