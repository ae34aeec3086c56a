package funnel

// GA4 event names tracked by the voice-clone flow.
const (
	EventExposure        = "page_voice_clone_exposure"
	EventAddVoice        = "voice_clone_add_voice_click"
	EventPreviewPlay     = "voice_clone_preview_listen_play_click"
	EventSaveSuccess     = "voice_clone_save_success"
	EventSaveVoiceUse    = "voice_clone_save_voice_use"
	EventCompleteBack    = "voice_clone_complete_back"
	EventCreationEntry   = "creation_voice_clone_click"
	EventLibraryEntry    = "voice_library_voice_clone_click"
	EventSelectManually  = "voice_clone_select_manually"
	EventSaveDescription = "voice_clone_save_description"
	EventUpgradeClick    = "voice_clone_upgrade_click"
)

// ExitStepLabel is the synthetic label for the terminal funnel step, the
// de-duplicated union of the two leave-the-flow events.
const ExitStepLabel = "exit_page"

// UnknownSource is the bucket key used when an occurrence carries no
// attribution parameter.
const UnknownSource = "unknown"

// AttributionParam is the event parameter grouped for source attribution.
const AttributionParam = "from"

// Parameters compared for the description-change detection.
const (
	DescriptionParam         = "description"
	OriginalDescriptionParam = "original_description"
)

var (
	// primaryEvents are the four funnel steps tracked individually, in
	// product-flow order.
	primaryEvents = []string{
		EventExposure,
		EventAddVoice,
		EventPreviewPlay,
		EventSaveSuccess,
	}

	// exitEvents are the two mutually-exclusive ways to leave the flow.
	exitEvents = []string{EventSaveVoiceUse, EventCompleteBack}

	// entryEvents are the two entry points into the clone page.
	entryEvents = []string{EventCreationEntry, EventLibraryEntry}

	// purchaseEvents are the payment events counted for upgrade conversion.
	purchaseEvents = []string{"purchase", "in_app_purchase", "subscription_purchase"}
)
