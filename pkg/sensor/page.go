package sensor

import (
	"fmt"

	"github.com/mbalug7/go-tarts/pkg/gwapi"
)

// Page is one 16 byte configuration sector image
type Page [gwapi.PageSize]byte

// sectors in sync priority order, index is the page slot
var sectors = [4]gwapi.Sector{
	gwapi.SectorGeneral1,
	gwapi.SectorGeneral2,
	gwapi.SectorProfile1,
	gwapi.SectorProfile2,
}

func slotOf(sector gwapi.Sector) (int, error) {
	for i, s := range sectors {
		if s == sector {
			return i, nil
		}
	}
	return 0, fmt.Errorf("sensor: unknown configuration sector %d", sector)
}

func filled(v byte) Page {
	var p Page
	for i := range p {
		p[i] = v
	}
	return p
}

func (obj *Sensor) generalPage1() Page {
	p := filled(0xFF)
	p[4] = byte(obj.sensorType)
	p[5] = byte(obj.sensorType >> 8)
	p[6] = 50
	p[7] = 0
	p[8] = byte(obj.reportInterval)
	p[9] = byte(obj.reportInterval >> 8)
	p[10] = byte(obj.reportInterval)
	p[11] = byte(obj.reportInterval >> 8)
	p[12] = obj.linkInterval
	p[13] = 126
	p[14] = 1
	p[15] = 1
	return p
}

func (obj *Sensor) generalPage2() Page {
	p := filled(0xFF)
	p[0] = obj.retryCount
	p[1] = obj.recovery
	return p
}

func (obj *Sensor) profilePage1() Page {
	if obj.Profile() == ProfileTrigger {
		return Page{2, 0, 50, 0, 6, 0, 1, 0, 1, 0, 0, 0, 0, 0, 0, 0}
	}
	p := filled(0xFF)
	copy(p[:], []byte{1, 1, 0, 0, 0, 0, 0, 0})
	return p
}

func (obj *Sensor) profilePage2() Page {
	if obj.control != nil {
		return obj.control.page()
	}
	return filled(0xFF)
}

// EncodePage renders the current settings into the image of a sector
func (obj *Sensor) EncodePage(sector gwapi.Sector) (Page, error) {
	switch sector {
	case gwapi.SectorGeneral1:
		return obj.generalPage1(), nil
	case gwapi.SectorGeneral2:
		return obj.generalPage2(), nil
	case gwapi.SectorProfile1:
		return obj.profilePage1(), nil
	case gwapi.SectorProfile2:
		return obj.profilePage2(), nil
	}
	_, err := slotOf(sector)
	return Page{}, err
}
