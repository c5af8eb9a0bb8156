package dialogue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightsmile/clinic-assistant/internal/clinic"
)

func fixedClock() time.Time {
	return time.Date(2026, 9, 4, 9, 30, 0, 0, time.UTC)
}

func TestBuildNodeDeterministic(t *testing.T) {
	f := NewFactory(clinic.Default(), fixedClock)
	ctx := map[string]string{
		"patient_name": "Jane Doe",
		"service":      "teeth_cleaning",
		"date":         "2026-09-07",
		"time":         "10:00",
	}

	for _, name := range AllNodes() {
		first, err := f.BuildNode(name, ctx)
		require.NoError(t, err, name)
		second, err := f.BuildNode(name, ctx)
		require.NoError(t, err, name)
		assert.Equal(t, first, second, "node %s must build identically", name)
	}
}

func TestBuildNodeUnknown(t *testing.T) {
	f := NewFactory(clinic.Default(), fixedClock)
	_, err := f.BuildNode("no_such_node", nil)
	assert.Error(t, err)
}

func TestServicesInfoBranchesOnBookingState(t *testing.T) {
	f := NewFactory(clinic.Default(), fixedClock)

	general, err := f.BuildNode(NodeServicesInfo, nil)
	require.NoError(t, err)
	assert.Contains(t, general.Actions, "schedule_appointment")
	assert.NotContains(t, general.Actions, "return_to_service_selection")

	midBooking, err := f.BuildNode(NodeServicesInfo, map[string]string{"patient_name": "Jane Doe"})
	require.NoError(t, err)
	assert.Contains(t, midBooking.Actions, "return_to_service_selection")
	assert.Contains(t, midBooking.Actions, "select_service")
	assert.NotContains(t, midBooking.Actions, "schedule_appointment")
}

func TestSymptomTriageBranchesOnPriority(t *testing.T) {
	f := NewFactory(clinic.Default(), fixedClock)

	urgent, err := f.BuildNode(NodeSymptomTriage, map[string]string{
		"symptom_priority": "urgent",
		"symptom_service":  "general_dentistry",
		"symptom_message":  "I understand you have an urgent situation.",
	})
	require.NoError(t, err)
	assert.Contains(t, urgent.Actions, "get_clinic_info")
	assert.Contains(t, urgent.Instructions, "URGENT")

	routine, err := f.BuildNode(NodeSymptomTriage, map[string]string{
		"symptom_priority": "low",
		"symptom_service":  "teeth_cleaning",
		"symptom_message":  "For dental hygiene and prevention, I recommend a professional cleaning.",
	})
	require.NoError(t, err)
	assert.Contains(t, routine.Actions, "get_services_info")
	assert.NotContains(t, routine.Instructions, "URGENT")
}

func TestEndNodeIsTerminal(t *testing.T) {
	f := NewFactory(clinic.Default(), fixedClock)

	end, err := f.BuildNode(NodeEnd, nil)
	require.NoError(t, err)
	assert.True(t, end.Terminal())
	assert.Empty(t, end.Actions)

	goodbye, err := f.BuildNode(NodeGoodbye, nil)
	require.NoError(t, err)
	assert.False(t, goodbye.Terminal())
	assert.Equal(t, []string{"end_conversation"}, goodbye.Actions)
}

func TestInitialNodeCarriesDateContext(t *testing.T) {
	f := NewFactory(clinic.Default(), fixedClock)
	node, err := f.BuildNode(NodeInitial, nil)
	require.NoError(t, err)
	assert.Contains(t, node.Instructions, "2026-09-04")
	assert.Contains(t, node.Instructions, "Friday")
}

func TestConfirmationRendersDetails(t *testing.T) {
	f := NewFactory(clinic.Default(), fixedClock)
	node, err := f.BuildNode(NodeAppointmentConfirmation, map[string]string{
		"patient_name":     "Jane Doe",
		"phone_number":     "555-0100",
		"service":          "teeth_cleaning",
		"preferred_doctor": "Dr. Maria Georgescu",
		"date":             "2026-09-07",
		"time":             "10:00",
	})
	require.NoError(t, err)
	assert.Contains(t, node.Instructions, "Jane Doe")
	assert.Contains(t, node.Instructions, "Teeth Cleaning")
	assert.Contains(t, node.Instructions, "Dr. Maria Georgescu")
	assert.Contains(t, node.Instructions, "45 minutes")
}
