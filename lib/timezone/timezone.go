package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/Santiago")
	if err != nil {
		panic(err)
	}
}

// force timezone to be Chile's because the portals render movement dates
// in the bank's local day and a server elsewhere would shift them across
// midnight when manipulating <time.Time>.Year()/Month()/Day()/Hour()/...
func Now() time.Time {
	return time.Now().In(Location)
}
