package quote

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fixerstudio/marketbrief/config"
	"github.com/fixerstudio/marketbrief/http"
)

type ClientProvider func(cfg *config.Config, httpClient *http.Client) Client

var providers []ClientProvider

// Register makes a provider available by name, call it from init.
func Register(p ClientProvider) {
	providers = append(providers, p)
}

type Registry struct {
	clients       map[string]Client
	officialNames []string
}

func NewRegistry(cfg *config.Config, httpClient *http.Client) *Registry {
	r := &Registry{clients: make(map[string]Client)}
	for _, p := range providers {
		client := p(cfg, httpClient)
		r.officialNames = append(r.officialNames, client.GetName())
		upperName := strings.ToUpper(client.GetName())
		if _, exist := r.clients[upperName]; exist {
			panic(fmt.Errorf("%q already exists in provider registry", upperName))
		}
		r.clients[upperName] = client
	}
	return r
}

func (r *Registry) GetAllNames() []string {
	names := append([]string(nil), r.officialNames...)
	sort.Strings(names)
	return names
}

// GetClient finds a provider by name, ignoring case. It returns nil for
// unknown names.
func (r *Registry) GetClient(name string) Client {
	if client, ok := r.clients[strings.ToUpper(name)]; ok {
		return client
	}
	return nil
}
