package tourguard

import (
	"net/http"
	"strings"

	"github.com/ashishbishnoi18/tourguard/apperr"
	"github.com/ashishbishnoi18/tourguard/defense"
)

var errEmailRequired = apperr.BadRequestf("Please provide your email address.")

// ============================================================================
// Users API
// ============================================================================

func (a *Auth) apiSignup(w http.ResponseWriter, r *http.Request) error {
	p := defense.ParamsFrom(r)
	u, issued, err := a.Signup(r.Context(), SignupInput{
		Name:            p.String("name"),
		Email:           p.String("email"),
		Password:        p.String("password"),
		PasswordConfirm: p.String("passwordConfirm"),
	})
	if err != nil {
		return err
	}
	return a.sendToken(w, r, http.StatusCreated, u, issued)
}

func (a *Auth) apiLogin(w http.ResponseWriter, r *http.Request) error {
	p := defense.ParamsFrom(r)
	u, issued, err := a.Login(r.Context(), p.String("email"), p.String("password"))
	if err != nil {
		return err
	}
	return a.sendToken(w, r, http.StatusOK, u, issued)
}

func (a *Auth) apiLogout(w http.ResponseWriter, r *http.Request) error {
	a.Logout(w, r)
	return writeJSON(w, http.StatusOK, successBody{Status: "success"})
}

// apiForgotPassword answers the same way whether or not the email belongs
// to an account.
func (a *Auth) apiForgotPassword(w http.ResponseWriter, r *http.Request) error {
	email := defense.ParamsFrom(r).String("email")
	if strings.TrimSpace(email) == "" {
		return errEmailRequired
	}
	if err := a.RequestReset(r.Context(), email); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, successBody{Status: "success", Message: "Token sent to email!"})
}

func (a *Auth) apiResetPassword(w http.ResponseWriter, r *http.Request) error {
	p := defense.ParamsFrom(r)
	u, issued, err := a.CompleteReset(r.Context(), p.Param("token"), p.String("password"), p.String("passwordConfirm"))
	if err != nil {
		return err
	}
	return a.sendToken(w, r, http.StatusOK, u, issued)
}

func (a *Auth) apiUpdateMyPassword(w http.ResponseWriter, r *http.Request) error {
	p := defense.ParamsFrom(r)
	u := CurrentUser(r)
	issued, err := a.UpdateOwnCredential(r.Context(), u, p.String("passwordCurrent"), p.String("password"), p.String("passwordConfirm"))
	if err != nil {
		return err
	}
	return a.sendToken(w, r, http.StatusOK, u, issued)
}

func (a *Auth) apiMe(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(w, http.StatusOK, successBody{Status: "success", Data: &userData{User: CurrentUser(r)}})
}

func (a *Auth) apiUpdateMe(w http.ResponseWriter, r *http.Request) error {
	p := defense.ParamsFrom(r)
	if p.Has("password") || p.Has("passwordConfirm") {
		return ErrNotForPasswords
	}
	u, err := a.UpdateProfile(r.Context(), CurrentUser(r), p.String("name"), p.String("email"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, successBody{Status: "success", Data: &userData{User: u}})
}

// apiProviderSession returns the user of the federated login session, for
// the success page's script.
func (a *Auth) apiProviderSession(w http.ResponseWriter, r *http.Request) error {
	u, err := a.providerSessionUser(r)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUnauthorized
	}
	return writeJSON(w, http.StatusOK, successBody{Status: "success", Data: &userData{User: u}})
}

// ============================================================================
// Federated login
// ============================================================================

func (a *Auth) federatedLogin(w http.ResponseWriter, r *http.Request) error {
	p, err := a.provider(defense.ParamsFrom(r).Param("provider"))
	if err != nil {
		return err
	}
	a.FederatedLoginHandler(p).ServeHTTP(w, r)
	return nil
}

func (a *Auth) federatedCallback(w http.ResponseWriter, r *http.Request) error {
	p, err := a.provider(defense.ParamsFrom(r).Param("provider"))
	if err != nil {
		return err
	}
	a.FederatedCallbackHandler(p).ServeHTTP(w, r)
	return nil
}

// ============================================================================
// Pages
// ============================================================================

func (a *Auth) viewOverview(w http.ResponseWriter, r *http.Request) error {
	return a.render(w, "overview", viewData{Title: "All Tours", User: CurrentUser(r)})
}

func (a *Auth) viewLogin(w http.ResponseWriter, r *http.Request) error {
	// Already logged in
	if CurrentUser(r) != nil {
		http.Redirect(w, r, "/me", http.StatusSeeOther)
		return nil
	}
	return a.render(w, "login", viewData{Title: "Log into your account"})
}

func (a *Auth) viewSignup(w http.ResponseWriter, r *http.Request) error {
	if CurrentUser(r) != nil {
		http.Redirect(w, r, "/me", http.StatusSeeOther)
		return nil
	}
	return a.render(w, "signup", viewData{Title: "Create New Account"})
}

// The password pages are only for visitors who are not logged in.
func (a *Auth) viewForgotPassword(w http.ResponseWriter, r *http.Request) error {
	if CurrentUser(r) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return nil
	}
	return a.render(w, "forgotPassword", viewData{Title: "Forgot your password"})
}

func (a *Auth) viewResetPassword(w http.ResponseWriter, r *http.Request) error {
	if CurrentUser(r) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return nil
	}
	token := defense.CleanRouteParam(defense.ParamsFrom(r).Query.Get("token"))
	return a.render(w, "resetPassword", viewData{Title: "Set your new password", Token: token})
}

func (a *Auth) viewAccount(w http.ResponseWriter, r *http.Request) error {
	return a.render(w, "account", viewData{Title: "Your account", User: CurrentUser(r)})
}

func (a *Auth) viewSubmitUserData(w http.ResponseWriter, r *http.Request) error {
	p := defense.ParamsFrom(r)
	u, err := a.UpdateProfile(r.Context(), CurrentUser(r), p.String("name"), p.String("email"))
	if err != nil {
		return err
	}
	return a.render(w, "account", viewData{Title: "Your account", User: u, Msg: "Your data has been updated."})
}

// viewSuccess lands the browser after a federated login.
func (a *Auth) viewSuccess(w http.ResponseWriter, r *http.Request) error {
	u, err := a.providerSessionUser(r)
	if err != nil {
		return err
	}
	if u == nil {
		u = CurrentUser(r)
	}
	if u == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return nil
	}
	return a.render(w, "success", viewData{Title: "You are logged in", User: u})
}

func (a *Auth) viewLoginFailed(w http.ResponseWriter, r *http.Request) error {
	return a.renderStatus(w, http.StatusUnauthorized, "error", viewData{
		Title: "Log in failed",
		User:  CurrentUser(r),
		Msg:   "Error logging in. Please try again.",
	})
}
