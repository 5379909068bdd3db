package browser

import (
	"github.com/go-rod/rod/lib/proto"

	"dev/bravebird/weightsync-go/pkg/models"
)

// FromNetworkCookies converts DevTools cookies to the persisted form
func FromNetworkCookies(cookies []*proto.NetworkCookie) []models.SessionCookie {
	out := make([]models.SessionCookie, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		out = append(out, models.SessionCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			Session:  c.Session,
			SameSite: string(c.SameSite),
		})
	}
	return out
}

// ToCookieParams converts persisted cookies to DevTools parameters. Session
// cookies carry no expiry so the browser keeps them for its lifetime.
func ToCookieParams(cookies []models.SessionCookie) []*proto.NetworkCookieParam {
	out := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		}
		if !c.Session && c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		out = append(out, p)
	}
	return out
}
