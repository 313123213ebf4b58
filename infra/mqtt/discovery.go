package mqtt

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kilianp07/sunledger/core/odometer"
)

// HassAutoconfig is a Home Assistant MQTT discovery payload.
type HassAutoconfig struct {
	DeviceClass       string               `json:"dev_cla,omitempty"`
	UnitOfMeasurement string               `json:"unit_of_meas,omitempty"`
	Name              string               `json:"name"`
	StateTopic        string               `json:"stat_t"`
	ValueTemplate     string               `json:"val_tpl,omitempty"`
	AvailabilityTopic string               `json:"avty_t"`
	UniqueID          string               `json:"uniq_id"`
	StateClass        string               `json:"stat_cla,omitempty"`
	Device            HassAutoconfigDevice `json:"dev"`
}

type HassAutoconfigDevice struct {
	IDs  string `json:"ids"`
	Name string `json:"name"`
}

type sensor struct {
	name, class, unit, stateClass, topic, template string
}

func discoverySensors(prefix string) []sensor {
	state := func(reg, class, unit, stateClass string) sensor {
		return sensor{name: Slug(reg), class: class, unit: unit, stateClass: stateClass, topic: prefix + "/state/" + Slug(reg)}
	}
	return []sensor{
		state(odometer.RegPVPower, "power", "W", "measurement"),
		state(odometer.RegHouseConsumption, "power", "W", "measurement"),
		state(odometer.RegGridPower, "power", "W", "measurement"),
		state(odometer.RegBatteryChargePower, "power", "W", "measurement"),
		state(odometer.RegBatteryChargeLevel, "battery", "%", "measurement"),
		state(odometer.RegDailyGeneration, "energy", "kWh", "total_increasing"),
		state(odometer.RegDailyImport, "energy", "kWh", "total_increasing"),
		state(odometer.RegDailyExport, "energy", "kWh", "total_increasing"),
		state(odometer.RegDailyHouseConsumption, "energy", "kWh", "total_increasing"),
		{name: "today_pv_savings", class: "monetary", stateClass: "total", topic: prefix + "/reading", template: "{{ value_json.totals.pv_savings }}"},
		{name: "today_import_savings", class: "monetary", stateClass: "total", topic: prefix + "/reading", template: "{{ value_json.totals.import_savings }}"},
		{name: "today_import_cost", class: "monetary", stateClass: "total", topic: prefix + "/reading", template: "{{ value_json.totals.import_cost_cheap + value_json.totals.import_cost_expensive }}"},
		{name: "plan_cost", class: "monetary", topic: prefix + "/plan", template: "{{ value_json.cost }}"},
	}
}

// PublishDiscovery announces the sensors to Home Assistant as retained
// configs below discoveryPrefix. node identifies the device and defaults to
// the host name.
func PublishDiscovery(cli Client, discoveryPrefix, topicPrefix, node string) error {
	if node == "" {
		node, _ = os.Hostname()
	}
	for _, s := range discoverySensors(topicPrefix) {
		conf := HassAutoconfig{
			DeviceClass:       s.class,
			UnitOfMeasurement: s.unit,
			Name:              s.name,
			StateTopic:        s.topic,
			ValueTemplate:     s.template,
			AvailabilityTopic: topicPrefix + "/status",
			UniqueID:          fmt.Sprint(topicPrefix, ".", node, ".", s.name),
			StateClass:        s.stateClass,
			Device:            HassAutoconfigDevice{IDs: node, Name: node},
		}
		b, err := json.Marshal(&conf)
		if err != nil {
			return err
		}
		topic := fmt.Sprintf("%s/sensor/%s_%s/%s/config", discoveryPrefix, topicPrefix, node, s.name)
		if err := cli.Publish("discovery", topic, true, b); err != nil {
			return err
		}
	}
	return nil
}
