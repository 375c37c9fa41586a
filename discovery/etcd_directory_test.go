package discovery

import (
	"testing"
	"time"
)

func TestAdvertiseAndList(t *testing.T) {
	dir, err := NewEtcdDirectory([]string{"localhost:2379"})
	if err != nil {
		t.Fatal(err)
	}

	a1 := Advertisement{ServerID: "rpc://127.0.0.1:8001", DSN: "rpc://127.0.0.1:8001"}
	a2 := Advertisement{ServerID: "rpc://127.0.0.1:8002", DSN: "rpc://127.0.0.1:8002"}

	if err := dir.Advertise("Detail", a1, 10); err != nil {
		t.Fatal(err)
	}
	if err := dir.Advertise("Detail", a2, 10); err != nil {
		t.Fatal(err)
	}

	ads, err := dir.List("Detail")
	if err != nil {
		t.Fatal(err)
	}
	if len(ads) != 2 {
		t.Fatalf("expect 2 advertisements, got %d", len(ads))
	}

	if err := dir.Withdraw("Detail", a1.ServerID); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	ads, err = dir.List("Detail")
	if err != nil {
		t.Fatal(err)
	}
	if len(ads) != 1 || ads[0].ServerID != a2.ServerID {
		t.Fatalf("expect only %s after withdraw, got %v", a2.ServerID, ads)
	}

	dir.Withdraw("Detail", a2.ServerID)
}
