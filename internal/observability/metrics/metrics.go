package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "healsmart"

// StorefrontMetrics exposes counters/histograms for storefront flows.
type StorefrontMetrics struct {
	cartOps         *prometheus.CounterVec
	checkouts       *prometheus.CounterVec
	formSubmissions *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	liveRenders     *prometheus.CounterVec
	chatReplies     *prometheus.CounterVec
}

func NewStorefrontMetrics(reg prometheus.Registerer) *StorefrontMetrics {
	m := &StorefrontMetrics{
		cartOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "operations_total",
			Help:      "Cart mutations by operation and outcome",
		}, []string{"op", "status"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "checkouts_total",
			Help:      "Checkout attempts by outcome",
		}, []string{"status"}),
		formSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forms",
			Name:      "submissions_total",
			Help:      "Form submissions by kind and outcome",
		}, []string{"kind", "status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "emails_total",
			Help:      "Notification emails by provider and outcome",
		}, []string{"provider", "status"}),
		liveRenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liveview",
			Name:      "renders_total",
			Help:      "Live view renders by feed and outcome",
		}, []string{"feed", "status"}),
		chatReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "replies_total",
			Help:      "Bot replies by outcome",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.cartOps, m.checkouts, m.formSubmissions, m.notifications, m.liveRenders, m.chatReplies)
	return m
}

func (m *StorefrontMetrics) ObserveCartOp(op, status string) {
	if m == nil {
		return
	}
	m.cartOps.WithLabelValues(op, status).Inc()
}

func (m *StorefrontMetrics) ObserveCheckout(status string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(status).Inc()
}

func (m *StorefrontMetrics) ObserveFormSubmission(kind, status string) {
	if m == nil {
		return
	}
	m.formSubmissions.WithLabelValues(kind, status).Inc()
}

func (m *StorefrontMetrics) ObserveNotification(provider, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(provider, status).Inc()
}

func (m *StorefrontMetrics) ObserveRender(feed, status string) {
	if m == nil {
		return
	}
	m.liveRenders.WithLabelValues(feed, status).Inc()
}

func (m *StorefrontMetrics) ObserveChatReply(status string) {
	if m == nil {
		return
	}
	m.chatReplies.WithLabelValues(status).Inc()
}
