// Package delivery holds the subset of the delivery API schema the decisioning
// engine reads and produces. The shapes mirror the remote personalization
// service so that a locally evaluated response is interchangeable with a remote one.
package delivery

// ChannelType identifies where the request originates.
type ChannelType string

const (
	ChannelWeb    ChannelType = "web"
	ChannelMobile ChannelType = "mobile"
)

// OptionType is the content type of a decision option.
type OptionType string

const (
	OptionHTML     OptionType = "html"
	OptionJSON     OptionType = "json"
	OptionRedirect OptionType = "redirect"
	OptionDynamic  OptionType = "dynamic"
	OptionActions  OptionType = "actions"
)

// MetricType distinguishes display (impression) and click events.
type MetricType string

const (
	MetricDisplay MetricType = "display"
	MetricClick   MetricType = "click"
)

// DecisioningMethodOnDevice tags responses and telemetry produced locally.
const DecisioningMethodOnDevice = "on-device"

// CustomerID is an authenticated customer identifier.
type CustomerID struct {
	ID                 string `json:"id"`
	IntegrationCode    string `json:"integrationCode"`
	AuthenticatedState string `json:"authenticatedState,omitempty"`
}

// VisitorID groups every identifier a visitor can be known by.
type VisitorID struct {
	TntID                   string       `json:"tntId,omitempty"`
	ThirdPartyID            string       `json:"thirdPartyId,omitempty"`
	MarketingCloudVisitorID string       `json:"marketingCloudVisitorId,omitempty"`
	CustomerIDs             []CustomerID `json:"customerIds,omitempty"`
}

// IsEmpty reports whether no identifier at all is present.
func (v *VisitorID) IsEmpty() bool {
	return v == nil || (v.TntID == "" && v.ThirdPartyID == "" && v.MarketingCloudVisitorID == "" && len(v.CustomerIDs) == 0)
}

// Address is a page location with its referrer.
type Address struct {
	URL          string `json:"url,omitempty"`
	ReferringURL string `json:"referringUrl,omitempty"`
}

// Geo is the caller-supplied or resolved geo location.
type Geo struct {
	IPAddress   string   `json:"ipAddress,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	CountryCode string   `json:"countryCode,omitempty"`
	StateCode   string   `json:"stateCode,omitempty"`
	City        string   `json:"city,omitempty"`
	Zip         string   `json:"zip,omitempty"`
}

// HasLocation reports whether any location field (beyond the IP) is set.
func (g *Geo) HasLocation() bool {
	if g == nil {
		return false
	}
	return g.Latitude != nil || g.Longitude != nil || g.CountryCode != "" || g.StateCode != "" || g.City != ""
}

// Browser carries browser-level hints.
type Browser struct {
	Host           string `json:"host,omitempty"`
	WebGLRenderer  string `json:"webGLRenderer,omitempty"`
	Language       string `json:"language,omitempty"`
	JavaScriptFlag bool   `json:"javaScriptFlag,omitempty"`
}

// Context describes the device and page the request comes from.
type Context struct {
	Channel             ChannelType `json:"channel"`
	UserAgent           string      `json:"userAgent,omitempty"`
	Address             *Address    `json:"address,omitempty"`
	Geo                 *Geo        `json:"geo,omitempty"`
	Browser             *Browser    `json:"browser,omitempty"`
	TimeOffsetInMinutes *float64    `json:"timeOffsetInMinutes,omitempty"`
	Beacon              bool        `json:"beacon,omitempty"`
}

// Property scopes a request to a property (workspace).
type Property struct {
	Token string `json:"token"`
}

// TraceRequest enables diagnostic tracing in the response.
type TraceRequest struct {
	AuthorizationToken string            `json:"authorizationToken"`
	Usage              map[string]string `json:"usage,omitempty"`
}

// AudienceManager carries Audience Manager integration data.
type AudienceManager struct {
	LocationHint int    `json:"locationHint,omitempty"`
	Blob         string `json:"blob,omitempty"`
}

// AnalyticsRequest carries Analytics integration data.
type AnalyticsRequest struct {
	SupplementalDataID   string `json:"supplementalDataId,omitempty"`
	LoggingType          string `json:"logging,omitempty"`
	TrackingServer       string `json:"trackingServer,omitempty"`
	TrackingServerSecure string `json:"trackingServerSecure,omitempty"`
}

// ExperienceCloud groups the other Experience Cloud integrations.
type ExperienceCloud struct {
	AudienceManager *AudienceManager  `json:"audienceManager,omitempty"`
	Analytics       *AnalyticsRequest `json:"analytics,omitempty"`
}

// Order describes a purchase for conversion tracking.
type Order struct {
	ID                  string   `json:"id,omitempty"`
	Total               float64  `json:"total,omitempty"`
	PurchasedProductIDs []string `json:"purchasedProductIds,omitempty"`
}

// Product describes the product being viewed.
type Product struct {
	ID         string `json:"id,omitempty"`
	CategoryID string `json:"categoryId,omitempty"`
}

// RequestDetails are the per-item inputs shared by mbox, view and page-load requests.
type RequestDetails struct {
	Address           *Address          `json:"address,omitempty"`
	Parameters        map[string]string `json:"parameters,omitempty"`
	ProfileParameters map[string]string `json:"profileParameters,omitempty"`
	Order             *Order            `json:"order,omitempty"`
	Product           *Product          `json:"product,omitempty"`
}

// MboxRequest asks for the content of one named decision point.
type MboxRequest struct {
	RequestDetails
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// ViewRequest asks for a view; an empty Name means every view.
type ViewRequest struct {
	RequestDetails
	Name string `json:"name,omitempty"`
	Key  string `json:"key,omitempty"`
}

// ExecuteRequest asks for decisions whose display is implicit.
type ExecuteRequest struct {
	PageLoad *RequestDetails `json:"pageLoad,omitempty"`
	Mboxes   []MboxRequest   `json:"mboxes,omitempty"`
}

// PrefetchRequest asks for decisions that will be displayed (and notified) later.
type PrefetchRequest struct {
	PageLoad *RequestDetails `json:"pageLoad,omitempty"`
	Views    []ViewRequest   `json:"views,omitempty"`
	Mboxes   []MboxRequest   `json:"mboxes,omitempty"`
}

// NotificationMbox references the mbox a notification belongs to.
type NotificationMbox struct {
	Name  string `json:"name"`
	State string `json:"state,omitempty"`
}

// NotificationView references the view a notification belongs to.
type NotificationView struct {
	Name  string `json:"name,omitempty"`
	Key   string `json:"key,omitempty"`
	State string `json:"state,omitempty"`
}

// Notification reports a display or click event.
type Notification struct {
	ID           string            `json:"id"`
	ImpressionID string            `json:"impressionId,omitempty"`
	Timestamp    int64             `json:"timestamp"`
	Type         MetricType        `json:"type"`
	Tokens       []string          `json:"tokens,omitempty"`
	Mbox         *NotificationMbox `json:"mbox,omitempty"`
	View         *NotificationView `json:"view,omitempty"`
}

// TelemetryFeatures describes how a request was served.
type TelemetryFeatures struct {
	DecisioningMethod string `json:"decisioningMethod,omitempty"`
}

// TelemetryEntry is an anonymous usage/performance sample.
type TelemetryEntry struct {
	RequestID string             `json:"requestId,omitempty"`
	Timestamp int64              `json:"timestamp"`
	Execution float64            `json:"execution"`
	Features  *TelemetryFeatures `json:"features,omitempty"`
}

// Telemetry batches telemetry entries.
type Telemetry struct {
	Entries []TelemetryEntry `json:"entries"`
}

// Request is a delivery request.
type Request struct {
	RequestID       string           `json:"requestId,omitempty"`
	ImpressionID    string           `json:"impressionId,omitempty"`
	ID              *VisitorID       `json:"id,omitempty"`
	Property        *Property        `json:"property,omitempty"`
	Trace           *TraceRequest    `json:"trace,omitempty"`
	Context         *Context         `json:"context"`
	ExperienceCloud *ExperienceCloud `json:"experienceCloud,omitempty"`
	Execute         *ExecuteRequest  `json:"execute,omitempty"`
	Prefetch        *PrefetchRequest `json:"prefetch,omitempty"`
	Notifications   []Notification   `json:"notifications,omitempty"`
	Telemetry       *Telemetry       `json:"telemetry,omitempty"`
}

// PropertyToken returns the request's property token, if any.
func (r *Request) PropertyToken() string {
	if r == nil || r.Property == nil {
		return ""
	}
	return r.Property.Token
}

// Option is one piece of content in a decision.
type Option struct {
	Type           OptionType     `json:"type,omitempty"`
	Content        any            `json:"content,omitempty"`
	EventToken     string         `json:"eventToken,omitempty"`
	ResponseTokens map[string]any `json:"responseTokens,omitempty"`
}

// Metric describes an event to be reported for a decision.
type Metric struct {
	Type       MetricType `json:"type,omitempty"`
	Selectors  []string   `json:"selectors,omitempty"`
	EventToken string     `json:"eventToken,omitempty"`
}

// MboxResponse is the decision for one mbox.
type MboxResponse struct {
	Index   *int           `json:"index,omitempty"`
	Name    string         `json:"name,omitempty"`
	Options []Option       `json:"options,omitempty"`
	Metrics []Metric       `json:"metrics,omitempty"`
	Trace   map[string]any `json:"trace,omitempty"`
}

// View is the decision for one view.
type View struct {
	Name    string         `json:"name,omitempty"`
	Key     string         `json:"key,omitempty"`
	Options []Option       `json:"options,omitempty"`
	Metrics []Metric       `json:"metrics,omitempty"`
	Trace   map[string]any `json:"trace,omitempty"`
}

// PageLoadResponse merges every global-mbox decision into one object.
type PageLoadResponse struct {
	Options []Option       `json:"options,omitempty"`
	Metrics []Metric       `json:"metrics,omitempty"`
	Trace   map[string]any `json:"trace,omitempty"`
}

// ExecuteResponse holds execute-mode decisions.
type ExecuteResponse struct {
	PageLoad *PageLoadResponse `json:"pageLoad,omitempty"`
	Mboxes   []MboxResponse    `json:"mboxes,omitempty"`
}

// PrefetchResponse holds prefetch-mode decisions.
type PrefetchResponse struct {
	PageLoad *PageLoadResponse `json:"pageLoad,omitempty"`
	Views    []View            `json:"views,omitempty"`
	Mboxes   []MboxResponse    `json:"mboxes,omitempty"`
}

// ResponseMeta tells the caller how the response was produced and what is missing.
type ResponseMeta struct {
	DecisioningMethod string   `json:"decisioningMethod"`
	RemoteMboxes      []string `json:"remoteMboxes,omitempty"`
	RemoteViews       []string `json:"remoteViews,omitempty"`
}

// Response is a delivery response.
type Response struct {
	Status    int               `json:"status"`
	RequestID string            `json:"requestId"`
	ID        *VisitorID        `json:"id,omitempty"`
	Client    string            `json:"client,omitempty"`
	Execute   *ExecuteResponse  `json:"execute,omitempty"`
	Prefetch  *PrefetchResponse `json:"prefetch,omitempty"`
	Meta      *ResponseMeta     `json:"meta,omitempty"`
}
