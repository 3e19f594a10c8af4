package bootstrap

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	prometheus "github.com/hertz-contrib/monitor-prometheus"
	"go.uber.org/zap"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query/part"
	"neo4jogm/biz/repo/graphrepo"
)

// ExplainRequest 是 /explain 与 /query 的请求体
type ExplainRequest struct {
	Entity string `json:"entity"`
	Method string `json:"method"`
	// Style 覆盖配置中的查询方式：filter | legacy
	Style string `json:"style,omitempty"`
	Args  []any  `json:"args,omitempty"`
}

// QueryResponse 是 /query 的返回
type QueryResponse struct {
	*graphrepo.Explanation
	Rows []mapping.Row `json:"rows"`
}

// NewServer 创建管理接口。配置了指标地址时挂载 prometheus tracer。
func NewServer(a *App) *server.Hertz {
	opts := []config.Option{server.WithHostPorts(a.Config.Server.Address)}
	if addr := a.Config.Server.MetricsAddress; addr != "" {
		opts = append(opts, server.WithTracer(prometheus.NewServerTracer(addr, a.Config.Server.MetricsPath)))
	}
	h := server.New(opts...)
	Register(h, a)
	a.Logger.Info("Hertz 服务器实例创建完成.", zap.String("address", a.Config.Server.Address))
	return h
}

// Register 注册路由
func Register(h *server.Hertz, a *App) {
	h.GET("/healthz", a.healthz)
	h.GET("/entities", a.entities)
	h.POST("/explain", a.explainHandler)
	h.POST("/query", a.queryHandler)
}

func (a *App) healthz(_ context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"status":    "ok",
		"transport": a.Config.Transport,
		"cache":     a.Store != nil,
		"events":    a.Publisher != nil,
	})
}

type entityInfo struct {
	Name          string   `json:"name"`
	Labels        []string `json:"labels"`
	IDStrategy    string   `json:"idStrategy"`
	Properties    []string `json:"properties"`
	Relationships []string `json:"relationships"`
}

func (a *App) entities(_ context.Context, c *app.RequestContext) {
	var out []entityInfo
	for _, nd := range a.Mapping.Entities() {
		info := entityInfo{Name: nd.Name, Labels: nd.AllLabels(), IDStrategy: nd.ID.Strategy.String()}
		for _, p := range nd.GraphProperties() {
			info.Properties = append(info.Properties, p.PropertyName)
		}
		for _, r := range nd.Relationships() {
			info.Relationships = append(info.Relationships, r.FieldName)
		}
		out = append(out, info)
	}
	c.JSON(consts.StatusOK, out)
}

// Explain 渲染派生方法的语句
func (a *App) Explain(req ExplainRequest) (*graphrepo.Explanation, error) {
	nd, err := a.Mapping.NodeDescriptionByName(req.Entity)
	if err != nil {
		return nil, err
	}
	style := a.Config.Repo.QueryStyle
	if req.Style != "" {
		style = req.Style
	}
	return graphrepo.Explain(a.Mapping, nd, a.Generator, graphrepo.ParseQueryStyle(style),
		a.Config.Repo.UseLabels, req.Method, req.Args, a.Logger)
}

func (a *App) explainHandler(_ context.Context, c *app.RequestContext) {
	var req ExplainRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
		return
	}
	exp, err := a.Explain(req)
	if err != nil {
		c.JSON(statusOf(err), utils.H{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, exp)
}

func (a *App) queryHandler(ctx context.Context, c *app.RequestContext) {
	var req ExplainRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
		return
	}
	exp, err := a.Explain(req)
	if err != nil {
		c.JSON(statusOf(err), utils.H{"error": err.Error()})
		return
	}
	rows, err := a.Session.Query(ctx, exp.Cypher, exp.Parameters)
	if err != nil {
		a.Logger.Error("执行查询失败", zap.String("cypher", exp.Cypher), zap.Error(err))
		c.JSON(consts.StatusBadGateway, utils.H{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, QueryResponse{Explanation: exp, Rows: rows})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, mapping.ErrUnknownEntity):
		return consts.StatusNotFound
	case errors.Is(err, part.ErrInvalidMethodName), errors.Is(err, mapping.ErrUnknownProperty):
		return consts.StatusBadRequest
	default:
		return consts.StatusUnprocessableEntity
	}
}
