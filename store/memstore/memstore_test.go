package memstore

import (
	"testing"

	"github.com/minios-linux/doclate/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, New())
}
