package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/Argentina/Buenos_Aires")
	if err != nil {
		panic(err)
	}
}

// dates scraped off the portal carry no offset, they are implicitly
// portal-local. pin to Buenos Aires so parsing doesn't depend on
// whatever region the server happens to be deployed in.
func Now() time.Time {
	return time.Now().In(Location)
}
