package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/pesantren/core/guard"
	"github.com/trezcool/pesantren/core/session"
)

type pageApi struct {
	guard *guard.Guard
	pages *guard.Table
}

type (
	PageResponse struct {
		guard.Decision
		Page string `json:"page"`
	}

	PageListing struct {
		guard.Page
		Allowed bool `json:"allowed"`
	}
)

func registerPagesAPI(g *echo.Group, anyone []echo.MiddlewareFunc, deps ServerDeps) {
	api := pageApi{guard: deps.Guard, pages: deps.Pages}

	pg := g.Group("/pages", anyone...)
	pg.GET("", api.list)
	pg.GET("/*", api.navigate)
}

// Handlers

// navigate runs the route guard for the page path. Redirects answer 303 with the decision.
func (api *pageApi) navigate(ctx echo.Context) error {
	path := "/" + ctx.Param("*")
	reqs, found := api.pages.Match(path)
	if !found {
		return errHttpNotFound
	}

	d := api.guard.Evaluate(getContextSnapshot(ctx), path, reqs...)
	switch d.State {
	case guard.Loading:
		return loading(ctx)
	case guard.Authorized:
		return ctx.JSON(http.StatusOK, PageResponse{Decision: d, Page: path})
	case guard.Unauthenticated:
		if notice, ok := ctx.Get(contextNoticeKey).(session.Notice); ok {
			d.Notice = notice.Message
		}
	}
	ctx.Response().Header().Set(echo.HeaderLocation, d.Redirect)
	return ctx.JSON(http.StatusSeeOther, PageResponse{Decision: d, Page: path})
}

// list returns every page with whether the session may open it now, for menus.
func (api *pageApi) list(ctx echo.Context) error {
	snap := getContextSnapshot(ctx)
	sub := snap.Resolution().Subject()
	pages := api.pages.Pages()
	listing := make([]PageListing, 0, len(pages))
	for _, p := range pages {
		reqs, _ := api.pages.Match(p.Path)
		allowed := snap.Authenticated()
		for _, req := range reqs {
			allowed = allowed && req.Allows(sub)
		}
		listing = append(listing, PageListing{Page: p, Allowed: allowed})
	}
	return ctx.JSON(http.StatusOK, listing)
}
