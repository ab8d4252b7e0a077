package hass

import (
	"fmt"
	"strings"
)

// Topics builds every topic the bridge publishes or subscribes to for one node.
type Topics struct {
	DiscoveryPrefix string
	Root            string
	Node            string
}

// NewTopics returns a Topics for the given discovery prefix, topic root and node.
func NewTopics(discoveryPrefix, root, node string) Topics {
	return Topics{DiscoveryPrefix: discoveryPrefix, Root: root, Node: node}
}

// ObjectPrefix is the shared object id prefix of a provider's entities, "N_T_".
func (t Topics) ObjectPrefix(sourceType string) string {
	return fmt.Sprintf("%s_%s_", t.Node, sourceType)
}

// ObjectID is the discovery object id of a unit, "N_T_U".
func (t Topics) ObjectID(sourceType, name string) string {
	return t.ObjectPrefix(sourceType) + name
}

// UniqueID is the Home Assistant unique id of a unit, "T_N_U".
func (t Topics) UniqueID(sourceType, name string) string {
	return fmt.Sprintf("%s_%s_%s", sourceType, t.Node, name)
}

// Config returns the retained discovery config topic of a unit.
func (t Topics) Config(sourceType, name string) string {
	return fmt.Sprintf("%s/update/%s/update/config", t.DiscoveryPrefix, t.ObjectID(sourceType, name))
}

// ConfigFilter matches the config topics of every update entity.
// MQTT wildcards cannot match part of a level, so callers narrow the result
// with ObjectPrefix.
func (t Topics) ConfigFilter() string {
	return t.DiscoveryPrefix + "/update/+/update/config"
}

// ConfigObjectID extracts the object id from a config topic, or "" if the
// topic is not a config topic under this discovery prefix.
func (t Topics) ConfigObjectID(topic string) string {
	rest, ok := strings.CutPrefix(topic, t.DiscoveryPrefix+"/update/")
	if !ok {
		return ""
	}
	objectID, ok := strings.CutSuffix(rest, "/update/config")
	if !ok || objectID == "" || strings.Contains(objectID, "/") {
		return ""
	}
	return objectID
}

// State returns the retained state topic of a unit.
func (t Topics) State(sourceType, name string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.Root, t.Node, sourceType, name)
}

// StateFilter matches the state topics of every unit of a provider.
func (t Topics) StateFilter(sourceType string) string {
	return fmt.Sprintf("%s/%s/%s/+", t.Root, t.Node, sourceType)
}

// Command returns the topic a provider's install commands arrive on.
func (t Topics) Command(sourceType string) string {
	return fmt.Sprintf("%s/%s/%s", t.Root, t.Node, sourceType)
}

// Availability returns the node's retained online/offline topic.
func (t Topics) Availability() string {
	return fmt.Sprintf("%s/%s/availability", t.Root, t.Node)
}
