// Package hass maps discoveries onto Home Assistant MQTT discovery payloads.
//
// Each unit becomes one Home Assistant "update" entity, described by a
// retained config payload under the discovery prefix and a retained state
// payload under the bridge's own topic root. All entities of one node share a
// device block so Home Assistant groups them together.
//
// Topic layout for node N, provider type T and unit U:
//
//	<discovery_prefix>/update/N_T_U/update/config   entity config
//	<topic_root>/N/T/U                              entity state
//	<topic_root>/N/T                                install commands
//	<topic_root>/N/availability                     online / offline
//
// Formatting is pure: the same Discovery always yields the same payloads.
package hass
