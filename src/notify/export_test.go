package notify

import "time"

func SetDigestClock(d *Digest, now func() time.Time) {
	d.now = now
}
