package rm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ohmsrm/pkg/events"
)

func TestRegisterTaskExecutorPopulatesAddressAndPublishesEvent(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	e, _, _, _ := newTestEndpointWithEvents(broker)
	defer e.Stop()

	resp, err := e.RegisterTaskExecutor(context.Background(), RegisterTaskExecutorRequest{
		Address:    "10.0.0.5:6121",
		ResourceID: ResourceID("tm-1"),
		DataPort:   6122,
	})
	require.NoError(t, err)
	require.NotNil(t, resp)

	info, ok := e.RequestTaskManagerInfoByID(ResourceID("tm-1"))
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5:6121", info.Address)
	assert.Equal(t, resp.InstanceID, info.InstanceID)

	evt := mustReceiveEvent(t, sub, events.EventTaskExecutorAdmitted)
	assert.Equal(t, "tm-1", evt.Metadata["resource_id"])
}

func TestDisconnectTaskManagerPublishesLostEvent(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	e, _, _, _ := newTestEndpointWithEvents(broker)
	defer e.Stop()

	_, err := e.RegisterTaskExecutor(context.Background(), RegisterTaskExecutorRequest{
		Address:    "10.0.0.5:6121",
		ResourceID: ResourceID("tm-1"),
	})
	require.NoError(t, err)
	mustReceiveEvent(t, sub, events.EventTaskExecutorAdmitted)

	e.DisconnectTaskManager(e.CurrentFencingToken(), ResourceID("tm-1"), nil)
	evt := mustReceiveEvent(t, sub, events.EventTaskExecutorLost)
	assert.Equal(t, "tm-1", evt.Metadata["resource_id"])

	_, ok := e.RequestTaskManagerInfoByID(ResourceID("tm-1"))
	assert.False(t, ok)
}
