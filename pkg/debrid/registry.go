package debrid

// Registry holds the configured debrid clients, keyed by their ID.
type Registry struct {
	clients map[string]Client
	ids     []string
}

func NewRegistry(clients ...Client) *Registry {
	registry := &Registry{
		clients: make(map[string]Client, len(clients)),
	}
	for _, client := range clients {
		registry.clients[client.ID()] = client
		registry.ids = append(registry.ids, client.ID())
	}
	return registry
}

// Get returns the client for the given service ID.
func (r *Registry) Get(id string) (Client, bool) {
	client, found := r.clients[id]
	return client, found
}

// IDs returns the service IDs in registration order.
func (r *Registry) IDs() []string {
	return r.ids
}
