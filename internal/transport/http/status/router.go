package statushttp

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Router 暴露引擎状态、指标、信号与日汇总的只读查询。
type Router struct {
	engine EngineSource
	ledger LedgerSource
}

// NewRouter 构造状态 router。
func NewRouter(eng EngineSource, ledger LedgerSource) *Router {
	return &Router{engine: eng, ledger: ledger}
}

// Register 将状态路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/indicators/:instrument", r.handleIndicators)
	if r.ledger != nil {
		group.GET("/signals", r.handleSignals)
		group.GET("/summary/:date", r.handleSummary)
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.engine.Status())
}

func (r *Router) handleIndicators(c *gin.Context) {
	instrument := strings.TrimSpace(c.Param("instrument"))
	ind, ok := r.engine.Indicators(instrument)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "该标的暂无指标数据"})
		return
	}
	c.JSON(http.StatusOK, ind)
}

func (r *Router) handleSignals(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	signals, err := r.ledger.ListRecentSignals(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询信号台账失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(signals), "signals": signals})
}

func (r *Router) handleSummary(c *gin.Context) {
	date := strings.TrimSpace(c.Param("date"))
	if _, err := time.Parse("2006-01-02", date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "日期格式应为 YYYY-MM-DD"})
		return
	}
	summaries, err := r.ledger.SummariesOn(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询日汇总失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trading_date": date, "summaries": summaries})
}
