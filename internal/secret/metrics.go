package secret

import "github.com/prometheus/client_golang/prometheus"

var (
	secretsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "secretshare_secrets_created_total",
		Help: "Total number of secrets created.",
	})

	secretsExpiredOnRead = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "secretshare_secrets_expired_on_read_total",
		Help: "Expired secrets deleted because a read found them past their deadline.",
	})
)

func init() {
	prometheus.MustRegister(secretsCreated, secretsExpiredOnRead)
}
