package tourguard

import (
	"net/http"

	"github.com/ashishbishnoi18/tourguard/defense"
	"github.com/julienschmidt/httprouter"
)

// handle registers h with route params copied into the request's Params,
// cleaned the same way the defense chain cleans the rest of the input.
func (a *Auth) handle(router *httprouter.Router, method, path string, h http.Handler) {
	router.Handle(method, path, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if len(ps) > 0 {
			p := defense.ParamsFrom(r)
			if p.Route == nil {
				p.Route = make(map[string]string, len(ps))
			}
			for _, param := range ps {
				p.Route[param.Key] = defense.CleanRouteParam(param.Value)
			}
			r = r.WithContext(defense.WithParams(r.Context(), p))
		}
		a.runProtected(w, r, func() { h.ServeHTTP(w, r) })
	})
}

// Routes builds the router for the users API, the federated login flow and
// the account pages.
func (a *Auth) Routes() *httprouter.Router {
	router := httprouter.New()
	router.HandleMethodNotAllowed = false
	router.NotFound = http.HandlerFunc(a.notFound)

	protect := a.Protect
	loggedIn := a.IsLoggedIn

	const users = "/api/v1/users"
	a.handle(router, http.MethodPost, users+"/signup", a.catch(a.apiSignup))
	a.handle(router, http.MethodPost, users+"/login", a.catch(a.apiLogin))
	a.handle(router, http.MethodGet, users+"/logout", a.catch(a.apiLogout))
	a.handle(router, http.MethodPost, users+"/forgotPassword", a.catch(a.apiForgotPassword))
	a.handle(router, http.MethodPatch, users+"/resetPassword/:token", a.catch(a.apiResetPassword))
	a.handle(router, http.MethodPatch, users+"/updateMyPassword", protect(a.catch(a.apiUpdateMyPassword)))
	a.handle(router, http.MethodGet, users+"/me", protect(a.catch(a.apiMe)))
	a.handle(router, http.MethodPatch, users+"/updateMe", protect(a.catch(a.apiUpdateMe)))
	a.handle(router, http.MethodGet, users+"/views/success", a.catch(a.apiProviderSession))

	a.handle(router, http.MethodGet, "/auth/:provider", a.catch(a.federatedLogin))
	a.handle(router, http.MethodGet, "/auth/:provider/callback", a.catch(a.federatedCallback))
	a.handle(router, http.MethodGet, a.cfg.SuccessPath, loggedIn(a.catch(a.viewSuccess)))
	a.handle(router, http.MethodGet, a.cfg.FailurePath, loggedIn(a.catch(a.viewLoginFailed)))

	a.handle(router, http.MethodGet, "/", loggedIn(a.catch(a.viewOverview)))
	a.handle(router, http.MethodGet, "/login", loggedIn(a.catch(a.viewLogin)))
	a.handle(router, http.MethodGet, "/signup", loggedIn(a.catch(a.viewSignup)))
	a.handle(router, http.MethodGet, "/forgotPassword", loggedIn(a.catch(a.viewForgotPassword)))
	a.handle(router, http.MethodGet, "/resetPassword", loggedIn(a.catch(a.viewResetPassword)))
	a.handle(router, http.MethodGet, "/me", protect(a.catch(a.viewAccount)))
	a.handle(router, http.MethodPost, "/submit-user-data", protect(a.catch(a.viewSubmitUserData)))

	return router
}

// Handler is the complete application: the defense chain in front of Routes.
func (a *Auth) Handler() http.Handler {
	h := defense.Chain(defense.Config{
		RateLimit: defense.RateLimitConfig{
			Prefix:     a.cfg.RateLimitPrefix,
			Requests:   a.cfg.RateLimitMax,
			Window:     a.cfg.RateLimitWindow,
			TrustProxy: a.cfg.TrustProxyHeaders,
			Counter:    a.rateCounter,
		},
		MaxBodyBytes: a.cfg.MaxBodyBytes,
		AllowList:    defense.DefaultAllowList,
		CompressMin:  a.cfg.CompressMin,
		OnError:      a.RespondError,
		Logger:       a.log,
	}, a.Routes())

	if a.cfg.Development() {
		h = a.logRequests(h)
	}
	return h
}
