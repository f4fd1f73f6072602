package gateway

import (
	"github.com/valyala/fasthttp"

	"ghostchat/pkg/utils"
)

// fastHandler serves the receipt fast path. Receipts are the hottest write
// in the system (every rendered message produces one), so they bypass the
// mux stack entirely:
//
//	POST /fast/viewed?session=<sid>&id=<messageID>
//	POST /fast/played?session=<sid>&id=<messageID>
func (g *Gateway) fastHandler(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		utils.JSONErrorFast(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sid := string(ctx.QueryArgs().Peek("session"))
	id := string(ctx.QueryArgs().Peek("id"))
	if sid == "" || id == "" {
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, "session and id required")
		return
	}
	s, ok := g.session(sid)
	if !ok {
		utils.JSONErrorFast(ctx, fasthttp.StatusNotFound, "unknown session")
		return
	}

	var err error
	switch string(ctx.Path()) {
	case "/fast/viewed":
		err = s.MarkViewed(id)
	case "/fast/played":
		err = s.MarkPlayed(id)
	default:
		utils.JSONErrorFast(ctx, fasthttp.StatusNotFound, "unknown path")
		return
	}
	if err != nil {
		utils.JSONErrorFast(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	ctx.SetStatusCode(fasthttp.StatusAccepted)
}
