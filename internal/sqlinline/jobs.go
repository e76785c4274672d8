package sqlinline

const QInsertJob = `--sql ae778cc4-f386-4709-8452-6af90911f4a6
insert into generation_jobs (id, kind, status, owner_id, date_key, locale)
values ($1::uuid, $2, $3, $4, $5::date, $6)
returning created_at, updated_at;
`

const QSelectJobByID = `--sql 524b0c41-3f25-4cee-b7d3-b82c97f6577b
select id::text, kind, status, owner_id, date_key::text, locale,
       coalesce(result_ref::text, ''), coalesce(error_message, ''),
       created_at, updated_at
from generation_jobs
where id = $1::uuid;
`

// QUpdateJobStatus only touches rows whose current status is one of the
// allowed predecessors passed in $5, so terminal rows are never rewritten.
const QUpdateJobStatus = `--sql 0913b58b-a88b-46e2-9e7e-e7814107faef
update generation_jobs
set status = $2,
    result_ref = nullif($3, '')::uuid,
    error_message = nullif($4, ''),
    updated_at = now()
where id = $1::uuid
  and status = any($5::text[])
returning id::text, kind, status, owner_id, date_key::text, locale,
          coalesce(result_ref::text, ''), coalesce(error_message, ''),
          created_at, updated_at;
`

const QSelectActiveJob = `--sql 0861f28c-9696-4782-9a6a-bed4be19806e
select id::text, kind, status, owner_id, date_key::text, locale,
       coalesce(result_ref::text, ''), coalesce(error_message, ''),
       created_at, updated_at
from generation_jobs
where owner_id = $1
  and kind = $2
  and date_key = $3::date
  and status in ('PENDING', 'RUNNING')
order by created_at desc
limit 1;
`

const QListJobs = `--sql 6d8b0fc2-2ae3-4018-a9be-56575aede743
select id::text, kind, status, owner_id, date_key::text, locale,
       coalesce(result_ref::text, ''), coalesce(error_message, ''),
       created_at, updated_at
from generation_jobs
where ($1 = '' or status = $1)
  and ($2 = '' or owner_id = $2)
order by created_at desc
limit $3;
`

const QJobStats = `--sql 9771c77d-5727-455d-a2d4-66d08cab0bbf
select kind, status, count(*)::int
from generation_jobs
group by kind, status
order by kind, status;
`

const QFailStuckJobs = `--sql c42cf958-ed0f-49cb-b07d-9ab7121fb021
update generation_jobs
set status = 'FAILED',
    error_message = $2,
    updated_at = now()
where status = 'RUNNING'
  and updated_at < $1
returning id::text;
`
