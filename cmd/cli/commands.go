package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/and161185/gatekeeper/internal/dto"
	"github.com/and161185/gatekeeper/internal/service"
)

var errUsage = errors.New("usage")

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func need(fs *flag.FlagSet, names ...string) error {
	for _, n := range names {
		if f := fs.Lookup(n); f == nil || f.Value.String() == "" {
			return fmt.Errorf("%s: -%s is required", fs.Name(), n)
		}
	}
	return nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// run parses global flags and dispatches one command, writing results to out.
func run(ctx context.Context, args []string, out io.Writer) error {
	global := newFlagSet("gkctl")
	addr := global.String("addr", "http://localhost:8080", "server base URL")
	caPath := global.String("cacert", "", "CA cert (PEM)")
	insecure := global.Bool("insecure", false, "skip cert verify (dev)")
	if err := global.Parse(args); err != nil || global.NArg() < 1 {
		return errUsage
	}
	tlsCfg, err := loadTLS(*caPath, *insecure)
	if err != nil {
		return err
	}
	api := newAPIClient(*addr, tlsCfg)
	cmd, rest := global.Arg(0), global.Args()[1:]

	switch cmd {
	case "version":
		fmt.Fprintf(out, "gkctl %s (%s)\n", version, buildDate)
		return nil
	case "token":
		return cmdToken(ctx, api, rest, out)
	case "revoke":
		return cmdRevoke(ctx, api, rest)
	case "admin-token":
		return cmdAdminToken(rest, out)
	case "clients", "tokens", "usage":
		tok, err := loadToken()
		if err != nil {
			return err
		}
		api.bearer = tok
		switch cmd {
		case "clients":
			return cmdClients(ctx, api, rest, out)
		case "tokens":
			return cmdTokens(ctx, api, rest)
		default:
			return cmdUsage(ctx, api, rest, out)
		}
	}
	return errUsage
}

func cmdToken(ctx context.Context, api *apiClient, args []string, out io.Writer) error {
	fs := newFlagSet("token")
	id := fs.String("id", "", "client id")
	secret := fs.String("secret", "", "client secret")
	scope := fs.String("scope", "", "space separated scopes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "id", "secret"); err != nil {
		return err
	}
	var tr dto.TokenResponse
	err := api.postForm(ctx, "/oauth/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {*id},
		"client_secret": {*secret},
		"scope":         {*scope},
	}, &tr)
	if err != nil {
		return err
	}
	printJSON(out, tr)
	return nil
}

func cmdRevoke(ctx context.Context, api *apiClient, args []string) error {
	fs := newFlagSet("revoke")
	id := fs.String("id", "", "client id")
	secret := fs.String("secret", "", "client secret")
	token := fs.String("token", "", "access token to revoke")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "id", "secret", "token"); err != nil {
		return err
	}
	return api.postForm(ctx, "/oauth/revoke", url.Values{
		"token":         {*token},
		"client_id":     {*id},
		"client_secret": {*secret},
	}, nil)
}

// cmdAdminToken mints an operator JWT locally with the shared admin key.
func cmdAdminToken(args []string, out io.Writer) error {
	fs := newFlagSet("admin-token")
	key := fs.String("key", os.Getenv("GK_ADMIN_JWT_KEY"), "admin HS256 key")
	operator := fs.String("operator", os.Getenv("USER"), "operator name")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "key", "operator"); err != nil {
		return err
	}
	raw, exp, err := service.NewOperatorAuth([]byte(*key)).Issue(*operator, *ttl)
	if err != nil {
		return err
	}
	if err := saveToken(raw, exp); err != nil {
		return err
	}
	printJSON(out, dto.AdminToken{Token: raw, ExpiresAt: exp})
	return nil
}

func cmdClients(ctx context.Context, api *apiClient, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}
	sub, args := args[0], args[1:]
	fs := newFlagSet("clients " + sub)

	switch sub {
	case "create":
		name := fs.String("name", "", "display name")
		desc := fs.String("desc", "", "description")
		scopes := fs.String("scopes", "", "comma separated allowed scopes")
		rate := fs.Int("rate", 60, "requests per window")
		org := fs.String("org", "", "organization id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := need(fs, "name"); err != nil {
			return err
		}
		body := dto.CreateClientRequest{Name: *name, Description: *desc, Scopes: splitList(*scopes), RateLimit: *rate}
		if *org != "" {
			body.OrganizationID = org
		}
		var created dto.CreatedClient
		if err := api.doJSON(ctx, http.MethodPost, "/admin/v1/clients", body, &created); err != nil {
			return err
		}
		printJSON(out, created)

	case "list":
		org := fs.String("org", "", "organization id")
		status := fs.String("status", "", "status filter")
		limit := fs.Int("limit", 0, "page size")
		offset := fs.Int("offset", 0, "page offset")
		if err := fs.Parse(args); err != nil {
			return err
		}
		q := url.Values{}
		if *org != "" {
			q.Set("org", *org)
		}
		if *status != "" {
			q.Set("status", *status)
		}
		if *limit > 0 {
			q.Set("limit", fmt.Sprint(*limit))
		}
		if *offset > 0 {
			q.Set("offset", fmt.Sprint(*offset))
		}
		path := "/admin/v1/clients"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		var list dto.ClientList
		if err := api.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
			return err
		}
		printJSON(out, list)

	case "get", "delete", "rotate":
		id := fs.String("id", "", "client id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := need(fs, "id"); err != nil {
			return err
		}
		path := "/admin/v1/clients/" + url.PathEscape(*id)
		switch sub {
		case "get":
			var c dto.Client
			if err := api.doJSON(ctx, http.MethodGet, path, nil, &c); err != nil {
				return err
			}
			printJSON(out, c)
		case "delete":
			if err := api.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(out, "ok")
		default:
			var rs dto.RotatedSecret
			if err := api.doJSON(ctx, http.MethodPost, path+"/rotate-secret", nil, &rs); err != nil {
				return err
			}
			printJSON(out, rs)
		}

	case "update":
		id := fs.String("id", "", "client id")
		status := fs.String("status", "", "active|suspended|revoked")
		scopes := fs.String("scopes", "", "comma separated allowed scopes")
		rate := fs.Int("rate", 0, "requests per window")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := need(fs, "id"); err != nil {
			return err
		}
		var patch dto.PatchClientRequest
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "status":
				patch.Status = status
			case "scopes":
				list := splitList(*scopes)
				patch.Scopes = &list
			case "rate":
				patch.RateLimit = rate
			}
		})
		if patch.Empty() {
			return errors.New("clients update: nothing to change")
		}
		var c dto.Client
		if err := api.doJSON(ctx, http.MethodPatch, "/admin/v1/clients/"+url.PathEscape(*id), patch, &c); err != nil {
			return err
		}
		printJSON(out, c)

	default:
		return errUsage
	}
	return nil
}

func cmdTokens(ctx context.Context, api *apiClient, args []string) error {
	if len(args) < 1 || args[0] != "revoke" {
		return errUsage
	}
	fs := newFlagSet("tokens revoke")
	id := fs.String("id", "", "token id")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if err := need(fs, "id"); err != nil {
		return err
	}
	return api.doJSON(ctx, http.MethodDelete, "/admin/v1/tokens/"+url.PathEscape(*id), nil, nil)
}

func cmdUsage(ctx context.Context, api *apiClient, args []string, out io.Writer) error {
	fs := newFlagSet("usage")
	id := fs.String("id", "", "client id")
	from := fs.String("from", "", "first day, YYYY-MM-DD")
	to := fs.String("to", "", "last day, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "id"); err != nil {
		return err
	}
	q := url.Values{}
	if *from != "" {
		q.Set("from", *from)
	}
	if *to != "" {
		q.Set("to", *to)
	}
	path := "/admin/v1/clients/" + url.PathEscape(*id) + "/usage"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var sum dto.UsageSummary
	if err := api.doJSON(ctx, http.MethodGet, path, nil, &sum); err != nil {
		return err
	}
	printJSON(out, sum)
	return nil
}
