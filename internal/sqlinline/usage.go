package sqlinline

const QInsertUsageEvent = `--sql ae211899-c0a8-4fac-9887-e8ab7b85b64a
insert into usage_events (id, job_id, user_id, modality, units, cost_cents, created_at)
values (gen_random_uuid(), $1::uuid, $2::uuid, $3::text, $4::int, $5::int, now());
`

const QSelectJobUsage = `--sql ae38d567-1b0a-4c6e-89c0-d5100a2d0c38
select modality, sum(units)::int, sum(cost_cents)::int
from usage_events
where job_id = $1::uuid
group by modality
order by modality;
`

const QSelectUsageLast24h = `--sql a21cad6d-080a-4887-863c-6887a9ce1e5d
select modality, count(*)::int, sum(units)::int, sum(cost_cents)::int
from usage_events
where created_at >= now() - interval '24 hours'
group by modality
order by modality;
`
