package browser

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// BlockedResourceTypes are aborted before they reach the network. The site
// works without them and skipping them makes every navigation much cheaper.
var BlockedResourceTypes = []proto.NetworkResourceType{
	proto.NetworkResourceTypeImage,
	proto.NetworkResourceTypeFont,
	proto.NetworkResourceTypeStylesheet,
	proto.NetworkResourceTypeMedia,
	proto.NetworkResourceTypeOther,
}

// blockResources installs a hijack router that fails every request of a
// blocked type. Requests of other types are never intercepted.
func blockResources(page *rod.Page) (*rod.HijackRouter, error) {
	router := page.HijackRequests()

	for _, rt := range BlockedResourceTypes {
		if err := router.Add("*", rt, abortRequest); err != nil {
			return nil, fmt.Errorf("failed to block %s requests: %w", rt, err)
		}
	}

	go router.Run()
	return router, nil
}

func abortRequest(h *rod.Hijack) {
	h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
}

// IsBlocked reports whether requests of type rt are aborted
func IsBlocked(rt proto.NetworkResourceType) bool {
	for _, blocked := range BlockedResourceTypes {
		if rt == blocked {
			return true
		}
	}
	return false
}
